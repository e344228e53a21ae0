package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/course"
	"github.com/pogilapp/server/core/user"
)

const courseColumns = "c.id, c.name, c.code, c.section, c.semester, c.instructor_id, c.created_at"

type courseRepository struct {
	repo
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) course.Repository {
	return &courseRepository{repo{exec: exec}}
}

func (r *courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	query, args, err := psql.Insert("courses").
		Columns("name", "code", "section", "semester", "instructor_id", "created_at").
		Values(c.Name, c.Code, c.Section, c.Semester, c.InstructorID, c.CreatedAt.UTC()).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building query")
	}
	if err = r.getExec(exec).GetContext(ctx, &c.ID, query, args...); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (r *courseRepository) GetCourse(ctx context.Context, id int, exec ...core.DBExecutor) (course.Course, error) {
	query, args, err := psql.Select(courseColumns).From("courses c").Where(sq.Eq{"c.id": id}).ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building query")
	}
	var c course.Course
	if err = r.getExec(exec).GetContext(ctx, &c, query, args...); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound)
	}
	return c, nil
}

func (r *courseRepository) QueryCourses(ctx context.Context, filter course.QueryFilter, exec ...core.DBExecutor) ([]course.Course, error) {
	q := psql.Select(courseColumns).From("courses c").OrderBy("c.id")
	if filter.InstructorID != 0 {
		q = q.Where(sq.Eq{"c.instructor_id": filter.InstructorID})
	}
	if filter.StudentID != 0 {
		q = q.Join("course_enrollments ce ON ce.course_id = c.id").Where(sq.Eq{"ce.student_id": filter.StudentID})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	courses := make([]course.Course, 0)
	if err = r.getExec(exec).SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting courses")
	}
	return courses, nil
}

func (r *courseRepository) EnrollStudents(ctx context.Context, courseID int, studentIDs []int, at time.Time, exec ...core.DBExecutor) error {
	if len(studentIDs) == 0 {
		return nil
	}
	q := psql.Insert("course_enrollments").Columns("course_id", "student_id", "enrolled_at")
	for _, id := range studentIDs {
		q = q.Values(courseID, id, at.UTC())
	}
	query, args, err := q.Suffix("ON CONFLICT (course_id, student_id) DO NOTHING").ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if _, err = r.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "inserting enrollments")
	}
	return nil
}

func (r *courseRepository) QueryEnrolledStudents(ctx context.Context, courseID int, exec ...core.DBExecutor) ([]user.Summary, error) {
	query, args, err := psql.Select("u.id", "u.name", "u.email").
		From("course_enrollments ce").
		Join("users u ON u.id = ce.student_id").
		Where(sq.Eq{"ce.course_id": courseID, "u.role": user.RoleStudent}).
		OrderBy("u.name", "u.id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	students := make([]user.Summary, 0)
	if err = r.getExec(exec).SelectContext(ctx, &students, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting enrolled students")
	}
	return students, nil
}

func (r *courseRepository) CountEnrolled(ctx context.Context, courseID int, studentIDs []int, exec ...core.DBExecutor) (int, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	query, args, err := psql.Select("COUNT(DISTINCT student_id)").
		From("course_enrollments").
		Where(sq.Eq{"course_id": courseID, "student_id": studentIDs}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	var n int
	if err = r.getExec(exec).GetContext(ctx, &n, query, args...); err != nil {
		return 0, errors.Wrap(err, "counting enrollments")
	}
	return n, nil
}

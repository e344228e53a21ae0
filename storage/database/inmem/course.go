package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/course"
	"github.com/pogilapp/server/core/user"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	c.ID = repo.db.nextPK()
	repo.db.t.courses[c.ID] = c
	return c, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id int, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.t.courses[id]; ok {
		return c, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter course.QueryFilter, _ ...core.DBExecutor) ([]course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	courses := make([]course.Course, 0)
	for _, c := range repo.db.t.courses {
		if filter.InstructorID != 0 && c.InstructorID != filter.InstructorID {
			continue
		}
		if filter.StudentID != 0 {
			if _, ok := repo.db.t.enrollments[enrollment{c.ID, filter.StudentID}]; !ok {
				continue
			}
		}
		courses = append(courses, c)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	return courses, nil
}

func (repo *courseRepository) EnrollStudents(_ context.Context, courseID int, studentIDs []int, _ time.Time, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.courses[courseID]; !ok {
		return course.ErrNotFound
	}
	for _, id := range studentIDs {
		repo.db.t.enrollments[enrollment{courseID, id}] = struct{}{}
	}
	return nil
}

func (repo *courseRepository) QueryEnrolledStudents(_ context.Context, courseID int, _ ...core.DBExecutor) ([]user.Summary, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := make([]user.Summary, 0)
	for e := range repo.db.t.enrollments {
		if e.courseID != courseID {
			continue
		}
		if usr, ok := repo.db.t.users[e.studentID]; ok && usr.IsStudent() {
			students = append(students, usr.Summary())
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

func (repo *courseRepository) CountEnrolled(_ context.Context, courseID int, studentIDs []int, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	n := 0
	for _, id := range core.UniqueInts(studentIDs) {
		if _, ok := repo.db.t.enrollments[enrollment{courseID, id}]; ok {
			n++
		}
	}
	return n, nil
}

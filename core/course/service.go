package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/user"
)

var (
	// errors
	ErrNotFound   = errors.New("course not found")
	ErrNotStudent = errors.New("only students can be enrolled")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		GetCourse(ctx context.Context, id int, exec ...core.DBExecutor) (Course, error)
		QueryCourses(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Course, error)
		EnrollStudents(ctx context.Context, courseID int, studentIDs []int, at time.Time, exec ...core.DBExecutor) error
		QueryEnrolledStudents(ctx context.Context, courseID int, exec ...core.DBExecutor) ([]user.Summary, error)
		// CountEnrolled counts how many of studentIDs are enrolled in the course.
		CountEnrolled(ctx context.Context, courseID int, studentIDs []int, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		Create(ctx context.Context, instructor user.User, nc NewCourse) (Course, error)
		Get(ctx context.Context, id int) (Course, error)
		QueryVisible(ctx context.Context, usr user.User) ([]Course, error)
		Enroll(ctx context.Context, c Course, studentIDs []int) error
		EnrolledStudents(ctx context.Context, courseID int) ([]user.Summary, error)
		AreEnrolled(ctx context.Context, courseID int, studentIDs []int) (bool, error)
	}

	service struct {
		repo   Repository
		usrSvc user.Service
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrSvc user.Service) Service {
	return &service{repo: repo, usrSvc: usrSvc}
}

// CanManage reports whether usr may administer the course: its instructor or root.
func CanManage(usr user.User, c Course) bool {
	return usr.IsRoot() || (usr.IsInstructor() && c.InstructorID == usr.ID)
}

func (svc *service) Create(ctx context.Context, instructor user.User, nc NewCourse) (Course, error) {
	return svc.repo.CreateCourse(ctx, Course{
		Name:         nc.Name,
		Code:         nc.Code,
		Section:      nc.Section,
		Semester:     nc.Semester,
		InstructorID: instructor.ID,
		CreatedAt:    time.Now().UTC(),
	})
}

func (svc *service) Get(ctx context.Context, id int) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *service) QueryVisible(ctx context.Context, usr user.User) ([]Course, error) {
	var filter QueryFilter
	switch usr.Role {
	case user.RoleRoot:
	case user.RoleInstructor:
		filter.InstructorID = usr.ID
	default:
		filter.StudentID = usr.ID
	}
	return svc.repo.QueryCourses(ctx, filter)
}

func (svc *service) Enroll(ctx context.Context, c Course, studentIDs []int) error {
	studentIDs = core.UniqueInts(studentIDs)
	users, err := svc.usrSvc.GetManyByID(ctx, studentIDs)
	if err != nil {
		return errors.Wrap(err, "finding students")
	}
	if len(users) != len(studentIDs) {
		return core.NewValidationError(user.ErrNotFound, core.FieldError{Field: "studentIds", Error: user.ErrNotFound.Error()})
	}
	for _, u := range users {
		if !u.IsStudent() {
			return core.NewValidationError(ErrNotStudent, core.FieldError{Field: "studentIds", Error: ErrNotStudent.Error()})
		}
	}
	return svc.repo.EnrollStudents(ctx, c.ID, studentIDs, time.Now().UTC())
}

func (svc *service) EnrolledStudents(ctx context.Context, courseID int) ([]user.Summary, error) {
	return svc.repo.QueryEnrolledStudents(ctx, courseID)
}

func (svc *service) AreEnrolled(ctx context.Context, courseID int, studentIDs []int) (bool, error) {
	studentIDs = core.UniqueInts(studentIDs)
	if len(studentIDs) == 0 {
		return true, nil
	}
	n, err := svc.repo.CountEnrolled(ctx, courseID, studentIDs)
	if err != nil {
		return false, errors.Wrap(err, "counting enrolled students")
	}
	return n == len(studentIDs), nil
}

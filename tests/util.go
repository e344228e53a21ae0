package testutil

import (
	"context"
	"io"
	"log"
	"strconv"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/activity"
	"github.com/pogilapp/server/core/course"
	"github.com/pogilapp/server/core/user"
	logsvc "github.com/pogilapp/server/services/logger"
)

// NewLogger returns a logger that discards its output and never reports to Rollbar.
func NewLogger() core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.NewTestConfig())
	logger.Enable(false)
	return logger
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateStudents creates n active students named Student1..n.
func CreateStudents(t *testing.T, repo user.Repository, n int) []user.User {
	t.Helper()
	students := make([]user.User, 0, n)
	for i := 1; i <= n; i++ {
		name := "Student" + strconv.Itoa(i)
		students = append(students, CreateUser(t, repo, name, "student"+strconv.Itoa(i)+"@example.com", "", user.RoleStudent, true))
	}
	return students
}

func CreateCourse(t *testing.T, repo course.Repository, name string, instructor user.User, students ...user.User) course.Course {
	t.Helper()
	ctx := context.Background()
	c, err := repo.CreateCourse(ctx, course.Course{Name: name, InstructorID: instructor.ID, CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	if len(students) > 0 {
		if err = repo.EnrollStudents(ctx, c.ID, IDs(students), time.Now().UTC()); err != nil {
			t.Fatalf("CreateCourse() failed to enroll: %v", err)
		}
	}
	return c
}

func CreateActivity(t *testing.T, repo activity.Repository, name, title, sheetURL string) activity.Activity {
	t.Helper()
	a, err := repo.CreateActivity(context.Background(), activity.Activity{
		Name:      name,
		Title:     title,
		SheetURL:  null.NewString(sheetURL, sheetURL != ""),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateActivity() failed: %v", err)
	}
	return a
}

func IDs(users []user.User) []int {
	ids := make([]int, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

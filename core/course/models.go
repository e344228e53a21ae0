package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pogilapp/server/core"
)

type Course struct {
	ID           int       `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Code         string    `json:"code" db:"code"`
	Section      string    `json:"section" db:"section"`
	Semester     string    `json:"semester" db:"semester"`
	InstructorID int       `json:"instructor_id" db:"instructor_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Name     string `json:"name" validate:"required"`
	Code     string `json:"code" validate:"omitempty,alphanum_"`
	Section  string `json:"section"`
	Semester string `json:"semester"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Code = core.CleanString(nc.Code)
	nc.Section = core.CleanString(nc.Section)
	nc.Semester = core.CleanString(nc.Semester)
	return validate.Struct(nc)
}

// NewEnrollments lists the students to enroll in a course.
type NewEnrollments struct {
	StudentIDs []int `json:"studentIds" validate:"required,min=1,dive,gt=0"`
}

func (ne *NewEnrollments) Validate(validate *validator.Validate) error {
	ne.StudentIDs = core.UniqueInts(ne.StudentIDs)
	return validate.Struct(ne)
}

// QueryFilter narrows a course listing; zero fields are ignored.
type QueryFilter struct {
	InstructorID int
	StudentID    int
}

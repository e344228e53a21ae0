package activity

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/pogilapp/server/core"
)

// Group roles, in assignment order.
const (
	RoleFacilitator  = "facilitator"
	RoleSpokesperson = "spokesperson"
	RoleAnalyst      = "analyst"
	RoleQC           = "qc"
)

var GroupRoles = []string{RoleFacilitator, RoleSpokesperson, RoleAnalyst, RoleQC}

func IsValidGroupRole(role string) bool {
	for _, r := range GroupRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Activity is a POGIL worksheet of the catalog.
type Activity struct {
	ID        int         `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Title     string      `json:"title" db:"title"`
	SheetURL  null.String `json:"sheet_url" db:"sheet_url"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"` // UTC
}

// NewActivity contains information needed to add an Activity to the catalog.
type NewActivity struct {
	Name     string `json:"name" validate:"required,alphanum_"`
	Title    string `json:"title" validate:"required"`
	SheetURL string `json:"sheet_url" validate:"omitempty,gdocurl"`
}

func (na *NewActivity) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	na.Title = core.CleanString(na.Title)
	na.SheetURL = core.CleanString(na.SheetURL)
	return validate.Struct(na)
}

// ActivityFilter selects a single activity; the first non-zero field wins.
type ActivityFilter struct {
	ID   int
	Name string
}

// Instance is one run of an Activity within a course. A NULL GroupNumber marks the general instance.
type Instance struct {
	ID          int       `json:"id" db:"id"`
	ActivityID  int       `json:"activity_id" db:"activity_id"`
	CourseID    int       `json:"course_id" db:"course_id"`
	GroupNumber null.Int  `json:"group_number" db:"group_number"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC

	// joined from the activity
	ActivityName  string      `json:"activity_name" db:"activity_name"`
	ActivityTitle string      `json:"activity_title" db:"activity_title"`
	SheetURL      null.String `json:"-" db:"sheet_url"`
}

type Group struct {
	ID          int      `json:"id" db:"id"`
	InstanceID  int      `json:"activity_instance_id" db:"activity_instance_id"`
	GroupNumber int      `json:"group_number" db:"group_number"`
	Members     []Member `json:"members" db:"-"`
}

type Member struct {
	GroupID   int    `json:"-" db:"activity_group_id"`
	StudentID int    `json:"id" db:"student_id"`
	Name      string `json:"name" db:"name"`
	Email     string `json:"email" db:"email"`
	Role      string `json:"role" db:"role"`
}

// NewGroup is a group to create; groups are numbered by position.
type NewGroup struct {
	Members []NewMember `json:"members" validate:"dive"`
}

type NewMember struct {
	StudentID int    `json:"student_id" validate:"required,gt=0"`
	Role      string `json:"role" validate:"required,grouprole"`
}

// RoleAssignment names the student holding each role of a single group.
type RoleAssignment struct {
	Facilitator  int `json:"facilitator" validate:"required,gt=0"`
	Spokesperson int `json:"spokesperson" validate:"required,gt=0"`
	Analyst      int `json:"analyst" validate:"required,gt=0"`
	QC           int `json:"qc" validate:"required,gt=0"`
}

func (ra RoleAssignment) Group() NewGroup {
	return NewGroup{Members: []NewMember{
		{StudentID: ra.Facilitator, Role: RoleFacilitator},
		{StudentID: ra.Spokesperson, Role: RoleSpokesperson},
		{StudentID: ra.Analyst, Role: RoleAnalyst},
		{StudentID: ra.QC, Role: RoleQC},
	}}
}

// CourseActivity is a catalog entry seen from a course: its latest instance there, if any.
type CourseActivity struct {
	ActivityID   int         `json:"activity_id" db:"activity_id"`
	ActivityName string      `json:"activity_name" db:"activity_name"`
	Title        string      `json:"title" db:"title"`
	SheetURL     null.String `json:"sheet_url" db:"sheet_url"`
	InstanceID   null.Int    `json:"instance_id" db:"instance_id"`
	IsReady      bool        `json:"is_ready" db:"is_ready"`
}

type Heartbeat struct {
	InstanceID int       `json:"activity_instance_id" db:"activity_instance_id"`
	UserID     int       `json:"user_id" db:"user_id"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// HeartbeatFilter selects the heartbeats of an instance's group members; GroupID is optional.
type HeartbeatFilter struct {
	InstanceID int
	GroupID    int
	Since      time.Time
}

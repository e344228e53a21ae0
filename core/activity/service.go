package activity

import (
	"context"
	"math/rand"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/course"
	"github.com/pogilapp/server/core/user"
	"github.com/pogilapp/server/core/worksheet"
)

var (
	// errors
	ErrActivityNotFound = errors.New("Activity not found")
	ErrActivityExists   = errors.New("an activity with this name already exists")
	ErrInstanceNotFound = errors.New("Instance not found")
	ErrNoSheetURL       = errors.New("No sheet_url found")
	ErrNotAuthorized    = errors.New("Not authorized to start this activity.")
	ErrNotEnrolled      = errors.New("All students must be enrolled in the course")
)

type (
	Repository interface {
		CreateActivity(ctx context.Context, a Activity, exec ...core.DBExecutor) (Activity, error)
		GetActivity(ctx context.Context, filter ActivityFilter, exec ...core.DBExecutor) (Activity, error)
		QueryActivities(ctx context.Context, exec ...core.DBExecutor) ([]Activity, error)
		// QueryCourseActivities lists the whole catalog along with the latest instance of each activity in the course.
		QueryCourseActivities(ctx context.Context, courseID int, exec ...core.DBExecutor) ([]CourseActivity, error)

		CreateInstance(ctx context.Context, inst Instance, exec ...core.DBExecutor) (Instance, error)
		GetInstance(ctx context.Context, id int, exec ...core.DBExecutor) (Instance, error)
		FindGeneralInstance(ctx context.Context, activityID, courseID int, exec ...core.DBExecutor) (Instance, error)

		// CreateGroups numbers the groups 1..n in order.
		CreateGroups(ctx context.Context, instanceID int, groups []NewGroup, exec ...core.DBExecutor) error
		DeleteGroups(ctx context.Context, instanceID int, exec ...core.DBExecutor) error
		QueryGroups(ctx context.Context, instanceID int, exec ...core.DBExecutor) ([]Group, error)
		CountGroups(ctx context.Context, instanceID int, exec ...core.DBExecutor) (int, error)
		IsGroupMember(ctx context.Context, instanceID, userID int, exec ...core.DBExecutor) (bool, error)

		UpsertHeartbeat(ctx context.Context, hb Heartbeat, exec ...core.DBExecutor) error
		// QueryHeartbeats returns heartbeats of the instance's group members, oldest first.
		QueryHeartbeats(ctx context.Context, filter HeartbeatFilter, exec ...core.DBExecutor) ([]Heartbeat, error)
	}

	// ContentFetcher reads worksheet sources from Google.
	ContentFetcher interface {
		SheetLines(ctx context.Context, documentID string) ([]string, error)
		DocParagraphs(ctx context.Context, documentID string) ([]string, error)
	}

	// Recorder receives activity metrics.
	Recorder interface {
		HeartbeatRecorded()
		GroupsCreated(n int)
		WorksheetParsed(source string, blocks, warnings int)
	}

	Service interface {
		CreateActivity(ctx context.Context, na NewActivity) (Activity, error)
		QueryActivities(ctx context.Context) ([]Activity, error)
		CourseActivities(ctx context.Context, courseID int) ([]CourseActivity, error)

		JoinInstance(ctx context.Context, usr user.User, activityName string, courseID int) (Instance, error)
		CreateInstanceWithRoles(ctx context.Context, activityName string, courseID int, roles RoleAssignment) (Instance, error)
		GetInstance(ctx context.Context, id int) (Instance, error)
		EnrolledStudents(ctx context.Context, instanceID int) ([]user.Summary, error)

		PreviewBlocks(ctx context.Context, inst Instance) ([]worksheet.Block, error)
		RenderInstance(ctx context.Context, inst Instance, opts worksheet.RenderOptions) (string, error)
		DocBlocks(ctx context.Context, inst Instance) ([]*worksheet.DocBlock, error)

		SetupGroupsForActivity(ctx context.Context, activityID, courseID int, presentStudentIDs []int) (Instance, error)
		SetupGroupsForInstance(ctx context.Context, instanceID int, groups []NewGroup) error
		ListGroups(ctx context.Context, instanceID int) ([]Group, error)

		RecordHeartbeat(ctx context.Context, instanceID, userID int) error
		ActiveStudent(ctx context.Context, instanceID, groupID int) (null.Int, error)
	}

	Deps struct {
		Conf      core.ActivityConfig
		Repo      Repository
		Tx        core.TxRunner
		CourseSvc course.Service
		Content   ContentFetcher
		MailSvc   core.EmailService
		Logger    core.Logger
		Clock     clockwork.Clock
		Rand      *rand.Rand
		Metrics   Recorder
	}

	service struct {
		Deps
		randMu sync.Mutex
	}
)

var _ Service = (*service)(nil)

// NewService panics when a mandatory dependency is missing.
func NewService(deps Deps) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Repo, "Repo"),
		vala.IsNotNil(deps.Tx, "Tx"),
		vala.IsNotNil(deps.CourseSvc, "CourseSvc"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.GreaterThan(deps.Conf.GroupSize, 0, "Conf.GroupSize"),
	).CheckAndPanic()

	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(deps.Clock.Now().UnixNano()))
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	return &service{Deps: deps}
}

// Catalog

func (svc *service) CreateActivity(ctx context.Context, na NewActivity) (Activity, error) {
	if _, err := svc.Repo.GetActivity(ctx, ActivityFilter{Name: na.Name}); err == nil {
		return Activity{}, core.NewValidationError(ErrActivityExists, core.FieldError{Field: "name", Error: ErrActivityExists.Error()})
	} else if errors.Cause(err) != ErrActivityNotFound {
		return Activity{}, errors.Wrap(err, "checking activity name")
	}
	return svc.Repo.CreateActivity(ctx, Activity{
		Name:      na.Name,
		Title:     na.Title,
		SheetURL:  null.NewString(na.SheetURL, na.SheetURL != ""),
		CreatedAt: svc.Clock.Now().UTC(),
	})
}

func (svc *service) QueryActivities(ctx context.Context) ([]Activity, error) {
	return svc.Repo.QueryActivities(ctx)
}

func (svc *service) CourseActivities(ctx context.Context, courseID int) ([]CourseActivity, error) {
	return svc.Repo.QueryCourseActivities(ctx, courseID)
}

// Instances

func (svc *service) newInstance(activityID, courseID int) Instance {
	return Instance{ActivityID: activityID, CourseID: courseID, CreatedAt: svc.Clock.Now().UTC()}
}

func (svc *service) JoinInstance(ctx context.Context, usr user.User, activityName string, courseID int) (Instance, error) {
	act, err := svc.Repo.GetActivity(ctx, ActivityFilter{Name: activityName})
	if err != nil {
		return Instance{}, err
	}
	c, err := svc.CourseSvc.Get(ctx, courseID)
	if err != nil {
		return Instance{}, err
	}

	inst, err := svc.Repo.FindGeneralInstance(ctx, act.ID, c.ID)
	switch errors.Cause(err) {
	case nil:
	case ErrInstanceNotFound:
		inst, err = svc.Repo.CreateInstance(ctx, svc.newInstance(act.ID, c.ID))
		if err != nil {
			return Instance{}, errors.Wrap(err, "creating instance")
		}
		svc.Logger.Info("activity instance created", map[string]interface{}{"instance": inst.ID, "activity": act.Name, "course": c.ID})
		return svc.Repo.GetInstance(ctx, inst.ID)
	default:
		return Instance{}, errors.Wrap(err, "finding general instance")
	}

	nGroups, err := svc.Repo.CountGroups(ctx, inst.ID)
	if err != nil {
		return Instance{}, errors.Wrap(err, "counting groups")
	}
	if nGroups == 0 || course.CanManage(usr, c) {
		return inst, nil
	}
	member, err := svc.Repo.IsGroupMember(ctx, inst.ID, usr.ID)
	if err != nil {
		return Instance{}, errors.Wrap(err, "checking group membership")
	}
	if !member {
		return Instance{}, ErrNotAuthorized
	}
	return inst, nil
}

func (svc *service) CreateInstanceWithRoles(ctx context.Context, activityName string, courseID int, roles RoleAssignment) (Instance, error) {
	act, err := svc.Repo.GetActivity(ctx, ActivityFilter{Name: activityName})
	if err != nil {
		return Instance{}, err
	}
	groups := []NewGroup{roles.Group()}
	if err := svc.checkMembers(ctx, courseID, groups, len(GroupRoles)); err != nil {
		return Instance{}, err
	}
	return svc.createWithGroups(ctx, act.ID, courseID, groups)
}

func (svc *service) GetInstance(ctx context.Context, id int) (Instance, error) {
	return svc.Repo.GetInstance(ctx, id)
}

func (svc *service) EnrolledStudents(ctx context.Context, instanceID int) ([]user.Summary, error) {
	inst, err := svc.Repo.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return svc.CourseSvc.EnrolledStudents(ctx, inst.CourseID)
}

// Groups

func (svc *service) SetupGroupsForActivity(ctx context.Context, activityID, courseID int, presentStudentIDs []int) (Instance, error) {
	presentStudentIDs = core.UniqueInts(presentStudentIDs)
	if len(presentStudentIDs) < svc.Conf.MinStudents {
		return Instance{}, minStudentsError(svc.Conf.MinStudents)
	}
	if _, err := svc.Repo.GetActivity(ctx, ActivityFilter{ID: activityID}); err != nil {
		return Instance{}, err
	}
	if err := svc.checkEnrolled(ctx, courseID, presentStudentIDs); err != nil {
		return Instance{}, err
	}

	svc.randMu.Lock()
	groups := AssignGroups(presentStudentIDs, svc.Conf.GroupSize, svc.Rand)
	svc.randMu.Unlock()

	return svc.createWithGroups(ctx, activityID, courseID, groups)
}

func (svc *service) SetupGroupsForInstance(ctx context.Context, instanceID int, groups []NewGroup) error {
	inst, err := svc.Repo.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if err := svc.checkMembers(ctx, inst.CourseID, groups, svc.Conf.MinStudents); err != nil {
		return err
	}

	err = svc.Tx.RunInTx(ctx, func(tx core.DBExecutor) error {
		if err := svc.Repo.DeleteGroups(ctx, inst.ID, tx); err != nil {
			return errors.Wrap(err, "deleting groups")
		}
		return errors.Wrap(svc.Repo.CreateGroups(ctx, inst.ID, groups, tx), "creating groups")
	})
	if err != nil {
		return err
	}
	svc.Metrics.GroupsCreated(len(groups))
	svc.notifyMembers(ctx, inst)
	return nil
}

func (svc *service) ListGroups(ctx context.Context, instanceID int) ([]Group, error) {
	if _, err := svc.Repo.GetInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	return svc.Repo.QueryGroups(ctx, instanceID)
}

func (svc *service) checkMembers(ctx context.Context, courseID int, groups []NewGroup, minStudents int) error {
	ids, err := validateGroups(groups, minStudents)
	if err != nil {
		return err
	}
	return svc.checkEnrolled(ctx, courseID, ids)
}

func (svc *service) checkEnrolled(ctx context.Context, courseID int, studentIDs []int) error {
	if _, err := svc.CourseSvc.Get(ctx, courseID); err != nil {
		return err
	}
	ok, err := svc.CourseSvc.AreEnrolled(ctx, courseID, studentIDs)
	if err != nil {
		return errors.Wrap(err, "checking enrollments")
	}
	if !ok {
		return core.NewValidationError(ErrNotEnrolled)
	}
	return nil
}

func (svc *service) createWithGroups(ctx context.Context, activityID, courseID int, groups []NewGroup) (Instance, error) {
	var inst Instance
	err := svc.Tx.RunInTx(ctx, func(tx core.DBExecutor) error {
		var err error
		if inst, err = svc.Repo.CreateInstance(ctx, svc.newInstance(activityID, courseID), tx); err != nil {
			return errors.Wrap(err, "creating instance")
		}
		return errors.Wrap(svc.Repo.CreateGroups(ctx, inst.ID, groups, tx), "creating groups")
	})
	if err != nil {
		return Instance{}, err
	}
	if inst, err = svc.Repo.GetInstance(ctx, inst.ID); err != nil {
		return Instance{}, errors.Wrap(err, "reloading instance")
	}

	svc.Metrics.GroupsCreated(len(groups))
	svc.notifyMembers(ctx, inst)
	return inst, nil
}

// Heartbeats

func (svc *service) RecordHeartbeat(ctx context.Context, instanceID, userID int) error {
	if _, err := svc.Repo.GetInstance(ctx, instanceID); err != nil {
		return err
	}
	hb := Heartbeat{InstanceID: instanceID, UserID: userID, UpdatedAt: svc.Clock.Now().UTC()}
	if err := svc.Repo.UpsertHeartbeat(ctx, hb); err != nil {
		return errors.Wrap(err, "saving heartbeat")
	}
	svc.Metrics.HeartbeatRecorded()
	return nil
}

func (svc *service) ActiveStudent(ctx context.Context, instanceID, groupID int) (null.Int, error) {
	now := svc.Clock.Now().UTC()
	hbs, err := svc.Repo.QueryHeartbeats(ctx, HeartbeatFilter{
		InstanceID: instanceID,
		GroupID:    groupID,
		Since:      now.Add(-svc.Conf.HeartbeatWindow),
	})
	if err != nil {
		return null.Int{}, errors.Wrap(err, "querying heartbeats")
	}
	ids := RotationOrder(hbs)
	idx := ActiveIndex(now, svc.Conf.RotationPeriod, len(ids))
	if idx < 0 {
		return null.Int{}, nil
	}
	return null.IntFrom(ids[idx]), nil
}

type nopRecorder struct{}

func (nopRecorder) HeartbeatRecorded()                {}
func (nopRecorder) GroupsCreated(int)                 {}
func (nopRecorder) WorksheetParsed(string, int, int) {}

package activity_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/activity"
	"github.com/pogilapp/server/core/course"
	"github.com/pogilapp/server/core/user"
	"github.com/pogilapp/server/core/worksheet"
	inmemdb "github.com/pogilapp/server/storage/database/inmem"
	testutil "github.com/pogilapp/server/tests"
)

const sheetURL = "https://docs.google.com/document/d/doc-123/edit"

type fakeContent struct {
	lines      []string
	paragraphs []string
	requested  []string
}

func (f *fakeContent) SheetLines(_ context.Context, documentID string) ([]string, error) {
	f.requested = append(f.requested, documentID)
	return f.lines, nil
}

func (f *fakeContent) DocParagraphs(_ context.Context, documentID string) ([]string, error) {
	f.requested = append(f.requested, documentID)
	return f.paragraphs, nil
}

type mailbox struct {
	mu   sync.Mutex
	msgs []*core.EmailMessage
}

func (m *mailbox) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	m.msgs = append(m.msgs, messages...)
	m.mu.Unlock()
}

type counters struct {
	heartbeats, groups, parsed int
}

func (c *counters) HeartbeatRecorded()                { c.heartbeats++ }
func (c *counters) GroupsCreated(n int)               { c.groups += n }
func (c *counters) WorksheetParsed(string, int, int) { c.parsed++ }

type env struct {
	usrRepo    user.Repository
	courseRepo course.Repository
	actRepo    activity.Repository

	svc     activity.Service
	clock   clockwork.FakeClock
	content *fakeContent
	mail    *mailbox
	metrics *counters

	root       user.User
	instructor user.User
	students   []user.User
	course     course.Course
	activity   activity.Activity
}

func newEnv(t *testing.T, nStudents int) *env {
	db := inmemdb.Open()
	e := &env{
		usrRepo:    inmemdb.NewUserRepository(db),
		courseRepo: inmemdb.NewCourseRepository(db),
		actRepo:    inmemdb.NewActivityRepository(db),
		clock:      clockwork.NewFakeClockAt(time.UnixMilli(600_000).UTC()),
		content:    &fakeContent{},
		mail:       &mailbox{},
		metrics:    &counters{},
	}

	usrSvc := user.NewService(e.usrRepo)
	e.svc = activity.NewService(activity.Deps{
		Conf:      core.NewTestConfig().Activity,
		Repo:      e.actRepo,
		Tx:        inmemdb.NewTxRunner(db),
		CourseSvc: course.NewService(e.courseRepo, usrSvc),
		Content:   e.content,
		MailSvc:   e.mail,
		Logger:    testutil.NewLogger(),
		Clock:     e.clock,
		Rand:      rand.New(rand.NewSource(7)),
		Metrics:   e.metrics,
	})

	e.root = testutil.CreateUser(t, e.usrRepo, "Root", "root@example.com", "", user.RoleRoot, true)
	e.instructor = testutil.CreateUser(t, e.usrRepo, "Prof", "prof@example.com", "", user.RoleInstructor, true)
	e.students = testutil.CreateStudents(t, e.usrRepo, nStudents)
	e.course = testutil.CreateCourse(t, e.courseRepo, "CS 101", e.instructor, e.students...)
	e.activity = testutil.CreateActivity(t, e.actRepo, "loops", "Loops", sheetURL)
	return e
}

func (e *env) groupOf(ids ...int) activity.NewGroup {
	g := activity.NewGroup{}
	for i, id := range ids {
		g.Members = append(g.Members, activity.NewMember{StudentID: id, Role: activity.GroupRoles[i%len(activity.GroupRoles)]})
	}
	return g
}

func TestService_CreateActivity(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()

	act, err := e.svc.CreateActivity(ctx, activity.NewActivity{Name: "functions", Title: "Functions"})
	require.NoError(t, err)
	assert.NotZero(t, act.ID)
	assert.False(t, act.SheetURL.Valid)

	_, err = e.svc.CreateActivity(ctx, activity.NewActivity{Name: "loops", Title: "Again"})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))

	acts, err := e.svc.QueryActivities(ctx)
	require.NoError(t, err)
	assert.Len(t, acts, 2)
}

func TestService_JoinInstance(t *testing.T) {
	e := newEnv(t, 5)
	ctx := context.Background()
	member, outsider := e.students[0], e.students[4]

	inst, err := e.svc.JoinInstance(ctx, member, "loops", e.course.ID)
	require.NoError(t, err)
	assert.False(t, inst.GroupNumber.Valid, "joining creates the general instance")
	assert.Equal(t, "loops", inst.ActivityName)

	again, err := e.svc.JoinInstance(ctx, outsider, "loops", e.course.ID)
	require.NoError(t, err)
	assert.Equal(t, inst.ID, again.ID, "ungrouped instance is open to everyone")

	group := e.groupOf(testutil.IDs(e.students[:4])...)
	require.NoError(t, e.svc.SetupGroupsForInstance(ctx, inst.ID, []activity.NewGroup{group}))

	tests := []struct {
		name    string
		usr     user.User
		wantErr error
	}{
		{name: "Group member", usr: member},
		{name: "Course instructor", usr: e.instructor},
		{name: "Root", usr: e.root},
		{name: "Outsider", usr: outsider, wantErr: activity.ErrNotAuthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.svc.JoinInstance(ctx, tt.usr, "loops", e.course.ID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, inst.ID, got.ID)
		})
	}

	_, err = e.svc.JoinInstance(ctx, member, "unknown", e.course.ID)
	assert.Equal(t, activity.ErrActivityNotFound, errors.Cause(err))
	_, err = e.svc.JoinInstance(ctx, member, "loops", 9999)
	assert.Equal(t, course.ErrNotFound, errors.Cause(err))
}

func TestService_CreateInstanceWithRoles(t *testing.T) {
	e := newEnv(t, 4)
	ctx := context.Background()
	s := testutil.IDs(e.students)

	inst, err := e.svc.CreateInstanceWithRoles(ctx, "loops", e.course.ID, activity.RoleAssignment{
		Facilitator: s[0], Spokesperson: s[1], Analyst: s[2], QC: s[3],
	})
	require.NoError(t, err)

	groups, err := e.svc.ListGroups(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 1, groups[0].GroupNumber)
	roles := map[int]string{}
	for _, m := range groups[0].Members {
		roles[m.StudentID] = m.Role
		assert.NotEmpty(t, m.Email)
	}
	assert.Equal(t, map[int]string{
		s[0]: activity.RoleFacilitator,
		s[1]: activity.RoleSpokesperson,
		s[2]: activity.RoleAnalyst,
		s[3]: activity.RoleQC,
	}, roles)
	assert.Len(t, e.mail.msgs, 4)
	assert.Equal(t, 1, e.metrics.groups)

	_, err = e.svc.CreateInstanceWithRoles(ctx, "loops", e.course.ID, activity.RoleAssignment{
		Facilitator: s[0], Spokesperson: s[0], Analyst: s[2], QC: s[3],
	})
	assert.Equal(t, activity.ErrDuplicateStudent.Error(), errors.Cause(err).Error())

	_, err = e.svc.CreateInstanceWithRoles(ctx, "nope", e.course.ID, activity.RoleAssignment{})
	assert.Equal(t, activity.ErrActivityNotFound, errors.Cause(err))
}

func TestService_SetupGroupsForActivity(t *testing.T) {
	e := newEnv(t, 10)
	ctx := context.Background()
	ids := testutil.IDs(e.students)

	inst, err := e.svc.SetupGroupsForActivity(ctx, e.activity.ID, e.course.ID, append(ids, ids[0]))
	require.NoError(t, err)

	groups, err := e.svc.ListGroups(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, groups, 3)

	var sizes []int
	placed := map[int]bool{}
	for i, g := range groups {
		assert.Equal(t, i+1, g.GroupNumber)
		sizes = append(sizes, len(g.Members))
		for _, m := range g.Members {
			assert.False(t, placed[m.StudentID], "student %d placed twice", m.StudentID)
			placed[m.StudentID] = true
		}
	}
	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Len(t, placed, 10)
	assert.Len(t, e.mail.msgs, 10)

	t.Run("Too few students", func(t *testing.T) {
		_, err := e.svc.SetupGroupsForActivity(ctx, e.activity.ID, e.course.ID, ids[:3])
		require.Error(t, err)
		assert.True(t, core.IsValidationError(err))
		assert.EqualError(t, err, "At least 4 students are required")
	})

	t.Run("Not enrolled", func(t *testing.T) {
		stranger := testutil.CreateUser(t, e.usrRepo, "Stranger", "stranger@example.com", "", user.RoleStudent, true)
		_, err := e.svc.SetupGroupsForActivity(ctx, e.activity.ID, e.course.ID, []int{ids[0], ids[1], ids[2], stranger.ID})
		require.Error(t, err)
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("Unknown activity", func(t *testing.T) {
		_, err := e.svc.SetupGroupsForActivity(ctx, 9999, e.course.ID, ids)
		assert.Equal(t, activity.ErrActivityNotFound, errors.Cause(err))
	})
}

func TestService_SetupGroupsForInstance(t *testing.T) {
	e := newEnv(t, 8)
	ctx := context.Background()
	ids := testutil.IDs(e.students)

	inst, err := e.svc.JoinInstance(ctx, e.instructor, "loops", e.course.ID)
	require.NoError(t, err)

	first := []activity.NewGroup{e.groupOf(ids[:4]...), e.groupOf(ids[4:]...)}
	require.NoError(t, e.svc.SetupGroupsForInstance(ctx, inst.ID, first))

	replacement := []activity.NewGroup{e.groupOf(ids[2:6]...)}
	require.NoError(t, e.svc.SetupGroupsForInstance(ctx, inst.ID, replacement))

	groups, err := e.svc.ListGroups(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1, "existing groups are replaced")
	assert.Equal(t, 1, groups[0].GroupNumber)
	assert.Len(t, groups[0].Members, 4)

	invalid := []activity.NewGroup{e.groupOf(ids[0], ids[1]), e.groupOf(ids[1], ids[2], ids[3])}
	err = e.svc.SetupGroupsForInstance(ctx, inst.ID, invalid)
	assert.EqualError(t, err, activity.ErrDuplicateStudent.Error())

	groups, err = e.svc.ListGroups(ctx, inst.ID)
	require.NoError(t, err)
	assert.Len(t, groups, 1, "a rejected layout leaves groups untouched")

	err = e.svc.SetupGroupsForInstance(ctx, 9999, replacement)
	assert.Equal(t, activity.ErrInstanceNotFound, errors.Cause(err))
}

func TestService_ActiveStudent(t *testing.T) {
	e := newEnv(t, 5)
	ctx := context.Background()
	s := testutil.IDs(e.students)

	inst, err := e.svc.JoinInstance(ctx, e.instructor, "loops", e.course.ID)
	require.NoError(t, err)
	require.NoError(t, e.svc.SetupGroupsForInstance(ctx, inst.ID, []activity.NewGroup{e.groupOf(s[:4]...)}))

	active, err := e.svc.ActiveStudent(ctx, inst.ID, 0)
	require.NoError(t, err)
	assert.False(t, active.Valid, "nobody is active without heartbeats")

	// s[4] is not a group member; its heartbeat never counts
	for _, id := range []int{s[0], s[4], s[1], s[2]} {
		require.NoError(t, e.svc.RecordHeartbeat(ctx, inst.ID, id))
		e.clock.Advance(time.Second)
	}
	assert.Equal(t, 4, e.metrics.heartbeats)

	// now = 604s: slot 10, 3 fresh members => index 1
	active, err = e.svc.ActiveStudent(ctx, inst.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, s[1], active.Int)

	// a newer heartbeat moves s[0] to the end of the rotation
	require.NoError(t, e.svc.RecordHeartbeat(ctx, inst.ID, s[0]))
	active, err = e.svc.ActiveStudent(ctx, inst.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, s[2], active.Int)

	// 62s later every heartbeat is stale
	e.clock.Advance(62 * time.Second)
	active, err = e.svc.ActiveStudent(ctx, inst.ID, 0)
	require.NoError(t, err)
	assert.False(t, active.Valid)

	err = e.svc.RecordHeartbeat(ctx, 9999, s[0])
	assert.Equal(t, activity.ErrInstanceNotFound, errors.Cause(err))
}

func TestService_Worksheet(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()
	e.content.lines = []string{`\title{Loops}`, `\question{What is a loop?}`, `\textresponse{2}`, `\endquestion`}
	e.content.paragraphs = []string{"Intro", `\question{q1}`, "Why?", ""}

	inst, err := e.svc.JoinInstance(ctx, e.instructor, "loops", e.course.ID)
	require.NoError(t, err)

	blocks, err := e.svc.PreviewBlocks(ctx, inst)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, worksheet.TypeHeader, blocks[0].BlockType())
	assert.Equal(t, worksheet.TypeQuestion, blocks[1].BlockType())
	assert.Equal(t, []string{"doc-123"}, e.content.requested)

	html, err := e.svc.RenderInstance(ctx, inst, worksheet.RenderOptions{Mode: worksheet.ModeRun, Editable: true})
	require.NoError(t, err)
	assert.Contains(t, html, `<h2 class="my-3 font-bold">Loops</h2>`)
	assert.Contains(t, html, `rows="2"`)

	docBlocks, err := e.svc.DocBlocks(ctx, inst)
	require.NoError(t, err)
	require.Len(t, docBlocks, 2)
	assert.Equal(t, worksheet.TypeInfo, docBlocks[0].Type)
	assert.Equal(t, "<p>Intro</p>", docBlocks[0].Content)
	assert.Equal(t, "q1", docBlocks[1].ID)
	assert.Equal(t, "<p>Why?</p>", docBlocks[1].Content)
	assert.Equal(t, 3, e.metrics.parsed)

	t.Run("No sheet url", func(t *testing.T) {
		testutil.CreateActivity(t, e.actRepo, "blank", "Blank", "")
		inst, err := e.svc.JoinInstance(ctx, e.instructor, "blank", e.course.ID)
		require.NoError(t, err)

		_, err = e.svc.PreviewBlocks(ctx, inst)
		assert.Equal(t, activity.ErrNoSheetURL, errors.Cause(err))
		_, err = e.svc.DocBlocks(ctx, inst)
		assert.Equal(t, activity.ErrNoSheetURL, errors.Cause(err))
	})
}

func TestService_CourseActivities(t *testing.T) {
	e := newEnv(t, 4)
	ctx := context.Background()
	testutil.CreateActivity(t, e.actRepo, "functions", "Functions", "")

	_, err := e.svc.SetupGroupsForActivity(ctx, e.activity.ID, e.course.ID, testutil.IDs(e.students))
	require.NoError(t, err)

	acts, err := e.svc.CourseActivities(ctx, e.course.ID)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "loops", acts[0].ActivityName)
	assert.True(t, acts[0].InstanceID.Valid)
	assert.True(t, acts[0].IsReady)
	assert.Equal(t, "functions", acts[1].ActivityName)
	assert.False(t, acts[1].InstanceID.Valid)
	assert.False(t, acts[1].IsReady)
}

func TestService_EnrolledStudents(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	inst, err := e.svc.JoinInstance(ctx, e.instructor, "loops", e.course.ID)
	require.NoError(t, err)

	students, err := e.svc.EnrolledStudents(ctx, inst.ID)
	require.NoError(t, err)
	assert.Len(t, students, 3)

	_, err = e.svc.EnrolledStudents(ctx, 9999)
	assert.Equal(t, activity.ErrInstanceNotFound, errors.Cause(err))
}

package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/pogilapp/server/core/activity"
	"github.com/pogilapp/server/core/user"
	"github.com/pogilapp/server/core/worksheet"
	emailsvc "github.com/pogilapp/server/services/email"
	testutil "github.com/pogilapp/server/tests"
)

func instancePath(id int, suffix string) string {
	return "/api/activity-instances/" + strconv.Itoa(id) + suffix
}

func decodeInstanceID(t *testing.T, body []byte) int {
	t.Helper()
	var resp InstanceIDResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotZero(t, resp.InstanceID)
	return resp.InstanceID
}

func Test_instanceApi_join(t *testing.T) {
	app := setup(t, 5)
	s := app.students
	outsider := testutil.CreateUser(t, app.usrRepo, "Outsider", "outsider@example.com", "", user.RoleStudent, true)
	join := func(name string, courseID int) []byte {
		return marshalObj(t, JoinRequest{ActivityName: name, CourseID: courseID})
	}

	runHTTPTests(t, app, []httpTest{
		{name: "Auth required", method: http.MethodPost, path: "/api/activity-instances", body: join("loops", app.course.ID), wantCode: http.StatusUnauthorized},
		{
			name: "Missing fields", method: http.MethodPost, path: "/api/activity-instances", token: app.token(t, s[0]),
			body: join("", app.course.ID), wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "Missing required fields"}),
		},
		{
			name: "Unknown activity", method: http.MethodPost, path: "/api/activity-instances", token: app.token(t, s[0]),
			body: join("nope", app.course.ID), wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "Activity not found"}),
		},
	})

	// no instance yet: a general one is created, then reused
	tt := httpTest{method: http.MethodPost, path: "/api/activity-instances", token: app.token(t, s[0]), body: join("loops", app.course.ID)}
	rec := app.run(t, tt)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeInstanceID(t, rec.Body.Bytes())
	rec = app.run(t, tt)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first, decodeInstanceID(t, rec.Body.Bytes()))

	ctx := context.Background()
	require.NoError(t, app.actRepo.CreateGroups(ctx, first, []activity.NewGroup{
		activity.RoleAssignment{Facilitator: s[0].ID, Spokesperson: s[1].ID, Analyst: s[2].ID, QC: s[3].ID}.Group(),
	}))

	wantFirst := marshalObj(t, InstanceIDResponse{InstanceID: first})
	runHTTPTests(t, app, []httpTest{
		{name: "Member", method: http.MethodPost, path: "/api/activity-instances", token: app.token(t, s[2]), body: join("loops", app.course.ID), wantData: wantFirst},
		{name: "Instructor", method: http.MethodPost, path: "/api/activity-instances", token: app.token(t, app.instructor), body: join("loops", app.course.ID), wantData: wantFirst},
		{name: "Root", method: http.MethodPost, path: "/api/activity-instances", token: app.token(t, app.root), body: join("loops", app.course.ID), wantData: wantFirst},
		{
			name: "Enrolled but not grouped", method: http.MethodPost, path: "/api/activity-instances", token: app.token(t, s[4]),
			body: join("loops", app.course.ID), wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "Not authorized to start this activity."}),
		},
		{
			name: "Outsider", method: http.MethodPost, path: "/api/activity-instances", token: app.token(t, outsider),
			body: join("loops", app.course.ID), wantCode: http.StatusForbidden,
		},
	})
}

func Test_instanceApi_createWithRoles(t *testing.T) {
	app := setup(t, 4)
	s := app.students
	profToken := app.token(t, app.instructor)
	roles := activity.RoleAssignment{Facilitator: s[0].ID, Spokesperson: s[1].ID, Analyst: s[2].ID, QC: s[3].ID}
	body := func(name string, ra activity.RoleAssignment) []byte {
		return marshalObj(t, WithRolesRequest{ActivityName: name, CourseID: app.course.ID, Roles: ra})
	}
	partial := roles
	partial.QC = 0

	runHTTPTests(t, app, []httpTest{
		{name: "Instructor required", method: http.MethodPost, path: "/api/activity-instances/with-roles", token: app.token(t, s[0]), body: body("loops", roles), wantCode: http.StatusForbidden},
		{
			name: "Missing fields", method: http.MethodPost, path: "/api/activity-instances/with-roles", token: profToken,
			body: []byte(`{"roles":{}}`), wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "Missing required fields"}),
		},
		{
			name: "Missing role", method: http.MethodPost, path: "/api/activity-instances/with-roles", token: profToken,
			body: body("loops", partial), wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"qc": "this field is required"}),
		},
		{
			name: "Unknown activity", method: http.MethodPost, path: "/api/activity-instances/with-roles", token: profToken,
			body: body("nope", roles), wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "Activity not found"}),
		},
	})

	rec := app.run(t, httpTest{method: http.MethodPost, path: "/api/activity-instances/with-roles", token: profToken, body: body("loops", roles)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := decodeInstanceID(t, rec.Body.Bytes())

	groups, err := app.actRepo.QueryGroups(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 1, groups[0].GroupNumber)
	assert.Equal(t, activity.RoleQC, groups[0].Members[3].Role)
	assert.Len(t, emailsvc.GetSentMessages(), 4)
}

func Test_instanceApi_setupGroups(t *testing.T) {
	app := setup(t, 6)
	profToken := app.token(t, app.instructor)
	setupBody := func(activityID, courseID int, ids []int) []byte {
		return marshalObj(t, SetupGroupsRequest{ActivityID: activityID, CourseID: courseID, PresentStudentIDs: ids})
	}
	ids := testutil.IDs(app.students)

	runHTTPTests(t, app, []httpTest{
		{
			name: "Missing fields", method: http.MethodPost, path: "/api/activity-instances/setup-groups", token: profToken,
			body: []byte(`{"activityId":1}`), wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "Missing required fields"}),
		},
		{
			name: "Too few students", method: http.MethodPost, path: "/api/activity-instances/setup-groups", token: profToken,
			body: setupBody(app.activity.ID, app.course.ID, ids[:3]), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: "At least 4 students are required"}),
		},
		{
			name: "Unknown activity", method: http.MethodPost, path: "/api/activity-instances/setup-groups", token: profToken,
			body: setupBody(9999, app.course.ID, ids), wantCode: http.StatusNotFound,
		},
	})

	rec := app.run(t, httpTest{
		method: http.MethodPost, path: "/api/activity-instances/setup-groups", token: profToken,
		body: setupBody(app.activity.ID, app.course.ID, ids),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeInstanceID(t, rec.Body.Bytes())

	rec = app.run(t, httpTest{method: http.MethodGet, path: instancePath(id, "/groups"), token: profToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var groups []activity.Group
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &groups))
	require.Len(t, groups, 2)
	assert.Len(t, groups[0].Members, 4)
	assert.Len(t, groups[1].Members, 2)
	assert.Equal(t, activity.RoleFacilitator, groups[1].Members[0].Role)
	assert.NotEmpty(t, groups[1].Members[0].Email)

	var raw []struct {
		Members []map[string]interface{} `json:"members"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	member := raw[0].Members[0]
	assert.EqualValues(t, groups[0].Members[0].StudentID, member["id"])
	assert.NotContains(t, member, "student_id")
	assert.Contains(t, member, "name")
	assert.Contains(t, member, "email")
	assert.Contains(t, member, "role")
	assert.Len(t, emailsvc.GetSentMessages(), 6)
}

func Test_instanceApi_setGroups(t *testing.T) {
	app := setup(t, 5)
	s := app.students
	profToken := app.token(t, app.instructor)
	inst, err := app.actRepo.CreateInstance(context.Background(), activity.Instance{ActivityID: app.activity.ID, CourseID: app.course.ID})
	require.NoError(t, err)
	path := instancePath(inst.ID, "/groups")

	member := func(id int, role string) activity.NewMember { return activity.NewMember{StudentID: id, Role: role} }
	body := func(groups ...activity.NewGroup) []byte {
		return marshalObj(t, SetGroupsRequest{Groups: groups})
	}
	full := activity.NewGroup{Members: []activity.NewMember{
		member(s[0].ID, activity.RoleFacilitator), member(s[1].ID, activity.RoleSpokesperson),
		member(s[2].ID, activity.RoleAnalyst), member(s[3].ID, activity.RoleQC),
	}}

	runHTTPTests(t, app, []httpTest{
		{name: "Instructor required", method: http.MethodPost, path: path, token: app.token(t, s[0]), body: body(full), wantCode: http.StatusForbidden},
		{
			name: "Unknown instance", method: http.MethodPost, path: instancePath(9999, "/groups"), token: profToken, body: body(full),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "Instance not found"}),
		},
		{
			name: "Too few", method: http.MethodPost, path: path, token: profToken,
			body:     body(activity.NewGroup{Members: full.Members[:3]}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "At least 4 students are required"}),
		},
		{
			name: "Invalid role", method: http.MethodPost, path: path, token: profToken,
			body:     body(activity.NewGroup{Members: []activity.NewMember{member(s[0].ID, "captain")}}),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"role": "invalid role; expected one of facilitator, spokesperson, analyst or qc"}),
		},
		{
			name: "Duplicate student", method: http.MethodPost, path: path, token: profToken,
			body:     body(full, activity.NewGroup{Members: []activity.NewMember{member(s[0].ID, activity.RoleFacilitator)}}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: activity.ErrDuplicateStudent.Error()}),
		},
		{name: "Replaced", method: http.MethodPost, path: path, token: profToken, body: body(full), wantData: marshalObj(t, SuccessResponse{Success: true})},
		{
			name: "Replaced again", method: http.MethodPost, path: path, token: profToken,
			body: body(
				activity.NewGroup{Members: []activity.NewMember{member(s[4].ID, activity.RoleFacilitator), member(s[3].ID, activity.RoleSpokesperson)}},
				activity.NewGroup{Members: []activity.NewMember{member(s[2].ID, activity.RoleFacilitator), member(s[1].ID, activity.RoleSpokesperson)}},
			),
			wantData: marshalObj(t, SuccessResponse{Success: true}),
		},
	})

	groups, err := app.actRepo.QueryGroups(context.Background(), inst.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []int{1, 2}, []int{groups[0].GroupNumber, groups[1].GroupNumber})
	assert.Equal(t, s[4].ID, groups[0].Members[0].StudentID)
}

func Test_instanceApi_details(t *testing.T) {
	app := setup(t, 2)
	ctx := context.Background()
	token := app.token(t, app.students[0])
	inst, err := app.actRepo.CreateInstance(ctx, activity.Instance{ActivityID: app.activity.ID, CourseID: app.course.ID})
	require.NoError(t, err)
	bare := testutil.CreateActivity(t, app.actRepo, "bare", "No sheet", "")
	bareInst, err := app.actRepo.CreateInstance(ctx, activity.Instance{ActivityID: bare.ID, CourseID: app.course.ID})
	require.NoError(t, err)

	app.content.paragraphs = []string{"Intro", `\question{q1}`, "What is a loop?"}

	runHTTPTests(t, app, []httpTest{
		{
			name: "Get", method: http.MethodGet, path: instancePath(inst.ID, ""), token: token,
			wantData: marshalObj(t, InstanceResponse{ID: inst.ID, CourseID: app.course.ID, ActivityName: "loops"}),
		},
		{
			name: "Get unknown", method: http.MethodGet, path: instancePath(9999, ""), token: token,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "Instance not found"}),
		},
		{
			name: "Enrolled students", method: http.MethodGet, path: instancePath(inst.ID, "/enrolled-students"), token: token,
			wantData: marshalObj(t, StudentsResponse{Students: []user.Summary{app.students[0].Summary(), app.students[1].Summary()}}),
		},
		{
			name: "Enrolled students: unknown", method: http.MethodGet, path: instancePath(9999, "/enrolled-students"), token: token,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "Activity instance not found"}),
		},
		{
			name: "Doc", method: http.MethodGet, path: instancePath(inst.ID, "/doc"), token: token,
			wantData: marshalObj(t, DocResponse{Lines: []*worksheet.DocBlock{
				{Type: worksheet.TypeInfo, Content: "<p>Intro</p>"},
				{Type: worksheet.TypeQuestion, ID: "q1", Content: "<p>What is a loop?</p>"},
			}}),
		},
		{
			name: "Doc without sheet", method: http.MethodGet, path: instancePath(bareInst.ID, "/doc"), token: token,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "No sheet_url found"}),
		},
		{
			name: "Preview without sheet", method: http.MethodGet, path: instancePath(bareInst.ID, "/preview"), token: token,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "No sheet_url found"}),
		},
		{name: "Render bad mode", method: http.MethodGet, path: instancePath(inst.ID, "/render?mode=edit"), token: token, wantCode: http.StatusBadRequest},
	})
}

func Test_instanceApi_worksheet(t *testing.T) {
	app := setup(t, 1)
	token := app.token(t, app.students[0])
	inst, err := app.actRepo.CreateInstance(context.Background(), activity.Instance{ActivityID: app.activity.ID, CourseID: app.course.ID})
	require.NoError(t, err)

	app.content.lines = []string{
		`\title{Loops}`,
		`\question{What does \texttt{range(3)} yield?}`,
		`\textresponse{2}`,
		`\sampleresponses{0, 1 and 2}`,
		`\endquestion`,
	}

	rec := app.run(t, httpTest{method: http.MethodGet, path: instancePath(inst.ID, "/preview"), token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var blocks []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &blocks))
	require.Len(t, blocks, 2)
	assert.Equal(t, worksheet.TypeHeader, blocks[0]["type"])
	assert.Equal(t, worksheet.TypeQuestion, blocks[1]["type"])
	assert.Equal(t, "a", blocks[1]["id"])

	rec = app.run(t, httpTest{method: http.MethodGet, path: instancePath(inst.ID, "/render"), token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Loops")
	assert.Contains(t, rec.Body.String(), "0, 1 and 2", "samples are shown in preview")

	rec = app.run(t, httpTest{method: http.MethodGet, path: instancePath(inst.ID, "/render?mode=run&editable=true&active=1"), token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "0, 1 and 2", "samples are hidden while running")
}

func Test_instanceApi_heartbeat(t *testing.T) {
	app := setup(t, 5)
	s := app.students
	inst, err := app.actRepo.CreateInstance(context.Background(), activity.Instance{ActivityID: app.activity.ID, CourseID: app.course.ID})
	require.NoError(t, err)
	require.NoError(t, app.actRepo.CreateGroups(context.Background(), inst.ID, []activity.NewGroup{
		activity.RoleAssignment{Facilitator: s[0].ID, Spokesperson: s[1].ID, Analyst: s[2].ID, QC: s[3].ID}.Group(),
	}))
	heartbeat := instancePath(inst.ID, "/heartbeat")
	active := instancePath(inst.ID, "/active-student")
	nobody := marshalObj(t, ActiveStudentResponse{})
	success := marshalObj(t, SuccessResponse{Success: true})

	noSubject := app.auth.claimsFor(s[0])
	noSubject.Subject = ""
	noSubjectToken, err := app.auth.generateToken(noSubject)
	require.NoError(t, err)

	runHTTPTests(t, app, []httpTest{
		{name: "Nobody present", method: http.MethodGet, path: active, token: app.token(t, s[0]), wantData: nobody},
		{
			name: "Missing userId", method: http.MethodPost, path: heartbeat, token: noSubjectToken, body: []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "Missing userId"}),
		},
		{
			name: "Students only report themselves", method: http.MethodPost, path: heartbeat, token: app.token(t, s[0]),
			body: marshalObj(t, HeartbeatRequest{UserID: s[1].ID}), wantCode: http.StatusForbidden,
		},
		{name: "Not a member", method: http.MethodPost, path: heartbeat, token: app.token(t, s[4]), body: []byte(`{}`), wantData: success},
		{name: "Still nobody", method: http.MethodGet, path: active, token: app.token(t, s[0]), wantData: nobody},
		{name: "Caller", method: http.MethodPost, path: heartbeat, token: app.token(t, s[1]), body: []byte(`{}`), wantData: success},
		{
			name: "One member present", method: http.MethodGet, path: active, token: app.token(t, s[0]),
			wantData: marshalObj(t, ActiveStudentResponse{ActiveStudentID: null.IntFrom(s[1].ID)}),
		},
		{
			name: "Instructor on behalf", method: http.MethodPost, path: heartbeat, token: app.token(t, app.instructor),
			body: marshalObj(t, HeartbeatRequest{UserID: s[2].ID}), wantData: success,
		},
		{name: "Bad group_id", method: http.MethodGet, path: active + "?group_id=x", token: app.token(t, s[0]), wantCode: http.StatusBadRequest},
		{name: "Unknown group", method: http.MethodGet, path: active + "?group_id=9999", token: app.token(t, s[0]), wantData: nobody},
	})

	rec := app.run(t, httpTest{method: http.MethodGet, path: active, token: app.token(t, s[0])})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ActiveStudentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, []int{s[1].ID, s[2].ID}, int(resp.ActiveStudentID.Int))
}

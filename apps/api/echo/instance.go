package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/activity"
	"github.com/pogilapp/server/core/user"
	"github.com/pogilapp/server/core/worksheet"
)

var (
	errMissingFields = core.NewValidationMessage("Missing required fields")
	errMissingUserID = core.NewValidationMessage("Missing userId")

	errEnrolledInstanceNotFound = echo.NewHTTPError(http.StatusNotFound, "Activity instance not found")
)

type instanceApi struct {
	svc      activity.Service
	auth     *authenticator
	validate *validator.Validate
}

func registerInstanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, svc activity.Service, validate *validator.Validate) {
	h := instanceApi{svc: svc, auth: auth, validate: validate}
	instructor := roleMiddleware(user.RoleInstructor)

	ig := g.Group("/activity-instances", jwt)
	ig.POST("", h.join)
	ig.POST("/with-roles", h.createWithRoles, instructor)
	ig.POST("/setup-groups", h.setupGroups, instructor)
	ig.GET("/:id/enrolled-students", h.enrolledStudents)

	dg := ig.Group("/:id", instanceMiddleware(svc))
	dg.GET("", h.retrieve)
	dg.GET("/preview", h.preview)
	dg.GET("/render", h.render)
	dg.GET("/doc", h.doc)
	dg.GET("/groups", h.groups)
	dg.POST("/groups", h.setGroups, instructor)
	dg.POST("/heartbeat", h.heartbeat)
	dg.GET("/active-student", h.activeStudent)
}

// Handlers

func (h *instanceApi) join(ctx echo.Context) error {
	var data JoinRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JoinRequest")
	}
	data.ActivityName = core.CleanString(data.ActivityName)
	if data.ActivityName == "" || data.CourseID <= 0 {
		return errMissingFields
	}
	usr, err := h.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	inst, err := h.svc.JoinInstance(ctx.Request().Context(), usr, data.ActivityName, data.CourseID)
	if err != nil {
		return errors.Wrap(err, "joining activity instance")
	}
	return ctx.JSON(http.StatusOK, InstanceIDResponse{InstanceID: inst.ID})
}

func (h *instanceApi) createWithRoles(ctx echo.Context) error {
	var data WithRolesRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to WithRolesRequest")
	}
	data.ActivityName = core.CleanString(data.ActivityName)
	if data.ActivityName == "" || data.CourseID <= 0 {
		return errMissingFields
	}
	if err := h.validate.Struct(data.Roles); err != nil {
		return err
	}

	inst, err := h.svc.CreateInstanceWithRoles(ctx.Request().Context(), data.ActivityName, data.CourseID, data.Roles)
	if err != nil {
		return errors.Wrap(err, "creating activity instance with roles")
	}
	return ctx.JSON(http.StatusOK, InstanceIDResponse{InstanceID: inst.ID})
}

func (h *instanceApi) setupGroups(ctx echo.Context) error {
	var data SetupGroupsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetupGroupsRequest")
	}
	if data.ActivityID <= 0 || data.CourseID <= 0 || data.PresentStudentIDs == nil {
		return errMissingFields
	}

	inst, err := h.svc.SetupGroupsForActivity(ctx.Request().Context(), data.ActivityID, data.CourseID, data.PresentStudentIDs)
	if err != nil {
		return errors.Wrap(err, "setting up groups")
	}
	return ctx.JSON(http.StatusCreated, InstanceIDResponse{InstanceID: inst.ID})
}

func (h *instanceApi) enrolledStudents(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return errEnrolledInstanceNotFound
	}
	students, err := h.svc.EnrolledStudents(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == activity.ErrInstanceNotFound {
			return errEnrolledInstanceNotFound
		}
		return errors.Wrap(err, "querying enrolled students")
	}
	return ctx.JSON(http.StatusOK, StudentsResponse{Students: students})
}

func (h *instanceApi) retrieve(ctx echo.Context) error {
	inst := contextInstance(ctx)
	return ctx.JSON(http.StatusOK, InstanceResponse{
		ID:           inst.ID,
		CourseID:     inst.CourseID,
		ActivityName: inst.ActivityName,
	})
}

func (h *instanceApi) preview(ctx echo.Context) error {
	blocks, err := h.svc.PreviewBlocks(ctx.Request().Context(), contextInstance(ctx))
	if err != nil {
		return errors.Wrap(err, "parsing sheet")
	}
	return ctx.JSON(http.StatusOK, blocks)
}

func (h *instanceApi) render(ctx echo.Context) error {
	opts := worksheet.RenderOptions{
		Mode:     ctx.QueryParam("mode"),
		Editable: boolQuery(ctx, "editable"),
		IsActive: boolQuery(ctx, "active"),
	}
	if opts.Mode != "" && opts.Mode != worksheet.ModePreview && opts.Mode != worksheet.ModeRun {
		return core.NewValidationError(errors.New("invalid mode"), core.FieldError{Field: "mode", Error: "expected preview or run"})
	}

	doc, err := h.svc.RenderInstance(ctx.Request().Context(), contextInstance(ctx), opts)
	if err != nil {
		return errors.Wrap(err, "rendering sheet")
	}
	return ctx.HTML(http.StatusOK, doc)
}

func (h *instanceApi) doc(ctx echo.Context) error {
	blocks, err := h.svc.DocBlocks(ctx.Request().Context(), contextInstance(ctx))
	if err != nil {
		return errors.Wrap(err, "parsing document")
	}
	return ctx.JSON(http.StatusOK, DocResponse{Lines: blocks})
}

func (h *instanceApi) groups(ctx echo.Context) error {
	groups, err := h.svc.ListGroups(ctx.Request().Context(), contextInstance(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (h *instanceApi) setGroups(ctx echo.Context) error {
	var data SetGroupsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetGroupsRequest")
	}
	if err := h.validate.Struct(data); err != nil {
		return err
	}

	if err := h.svc.SetupGroupsForInstance(ctx.Request().Context(), contextInstance(ctx).ID, data.Groups); err != nil {
		return errors.Wrap(err, "replacing groups")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *instanceApi) heartbeat(ctx echo.Context) error {
	var data HeartbeatRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to HeartbeatRequest")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	userID := data.UserID
	if userID == 0 {
		userID = claims.UserID()
	}
	if userID <= 0 {
		return errMissingUserID
	}
	// students only report their own presence
	if userID != claims.UserID() && !(&user.User{Role: claims.Role}).HasRoleAtLeast(user.RoleInstructor) {
		return errHttpForbidden
	}

	if err := h.svc.RecordHeartbeat(ctx.Request().Context(), contextInstance(ctx).ID, userID); err != nil {
		return errors.Wrap(err, "recording heartbeat")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *instanceApi) activeStudent(ctx echo.Context) error {
	var groupID int
	if v := ctx.QueryParam("group_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id <= 0 {
			return core.NewValidationError(errors.New("invalid group_id"), core.FieldError{Field: "group_id", Error: "must be a positive integer"})
		}
		groupID = id
	}

	active, err := h.svc.ActiveStudent(ctx.Request().Context(), contextInstance(ctx).ID, groupID)
	if err != nil {
		return errors.Wrap(err, "finding active student")
	}
	return ctx.JSON(http.StatusOK, ActiveStudentResponse{ActiveStudentID: active})
}

type (
	JoinRequest struct {
		ActivityName string `json:"activityName"`
		CourseID     int    `json:"courseId"`
	}

	WithRolesRequest struct {
		ActivityName string                  `json:"activityName"`
		CourseID     int                     `json:"courseId"`
		Roles        activity.RoleAssignment `json:"roles"`
	}

	SetupGroupsRequest struct {
		ActivityID        int   `json:"activityId"`
		CourseID          int   `json:"courseId"`
		PresentStudentIDs []int `json:"presentStudentIds"`
	}

	SetGroupsRequest struct {
		Groups []activity.NewGroup `json:"groups" validate:"dive"`
	}

	HeartbeatRequest struct {
		UserID int `json:"userId"`
	}

	InstanceResponse struct {
		ID           int    `json:"id"`
		CourseID     int    `json:"course_id"`
		ActivityName string `json:"activity_name"`
	}

	StudentsResponse struct {
		Students []user.Summary `json:"students"`
	}

	DocResponse struct {
		Lines []*worksheet.DocBlock `json:"lines"`
	}

	ActiveStudentResponse struct {
		ActiveStudentID null.Int `json:"activeStudentId"`
	}
)

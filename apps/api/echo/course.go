package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pogilapp/server/core/activity"
	"github.com/pogilapp/server/core/course"
	"github.com/pogilapp/server/core/user"
)

type courseApi struct {
	svc      course.Service
	actSvc   activity.Service
	auth     *authenticator
	validate *validator.Validate
}

func registerCourseAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc course.Service,
	actSvc activity.Service,
	validate *validator.Validate,
) {
	h := courseApi{svc: svc, actSvc: actSvc, auth: auth, validate: validate}

	cg := g.Group("/courses", jwt)
	cg.GET("", h.query)
	cg.POST("", h.create, roleMiddleware(user.RoleInstructor))

	dg := cg.Group("/:courseId")
	dg.GET("/activities", h.activities, courseMiddleware(auth, svc, false))
	dg.GET("/students", h.students, courseMiddleware(auth, svc, true))
	dg.POST("/enrollments", h.enroll, courseMiddleware(auth, svc, true))
}

func (h *courseApi) query(ctx echo.Context) error {
	usr, err := h.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	courses, err := h.svc.QueryVisible(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (h *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(h.validate); err != nil {
		return err
	}
	usr, err := h.auth.contextUser(ctx)
	if err != nil {
		return err
	}

	c, err := h.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (h *courseApi) activities(ctx echo.Context) error {
	acts, err := h.actSvc.CourseActivities(ctx.Request().Context(), contextCourse(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "querying course activities")
	}
	return ctx.JSON(http.StatusOK, acts)
}

func (h *courseApi) students(ctx echo.Context) error {
	students, err := h.svc.EnrolledStudents(ctx.Request().Context(), contextCourse(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "querying enrolled students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (h *courseApi) enroll(ctx echo.Context) error {
	var data course.NewEnrollments
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollments")
	}
	if err := data.Validate(h.validate); err != nil {
		return err
	}

	if err := h.svc.Enroll(ctx.Request().Context(), contextCourse(ctx), data.StudentIDs); err != nil {
		return errors.Wrap(err, "enrolling students")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

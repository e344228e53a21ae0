package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pogilapp/server/core/activity"
	"github.com/pogilapp/server/core/user"
)

type activityApi struct {
	svc      activity.Service
	validate *validator.Validate
}

func registerActivityAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc activity.Service, validate *validator.Validate) {
	h := activityApi{svc: svc, validate: validate}

	ag := g.Group("/activities", jwt)
	ag.GET("", h.query)
	ag.POST("", h.create, roleMiddleware(user.RoleInstructor))
}

func (h *activityApi) query(ctx echo.Context) error {
	acts, err := h.svc.QueryActivities(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying activities")
	}
	return ctx.JSON(http.StatusOK, acts)
}

func (h *activityApi) create(ctx echo.Context) error {
	var data activity.NewActivity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewActivity")
	}
	if err := data.Validate(h.validate); err != nil {
		return err
	}

	act, err := h.svc.CreateActivity(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating activity")
	}
	return ctx.JSON(http.StatusCreated, act)
}

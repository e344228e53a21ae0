package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/user"
)

type userApi struct {
	svc      user.Service
	auth     *authenticator
	validate *validator.Validate
}

func registerUserAPI(api, admin *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, svc user.Service, validate *validator.Validate) {
	h := userApi{svc: svc, auth: auth, validate: validate}

	ag := api.Group("/auth")
	ag.POST("/login", h.login)
	ag.POST("/token-refresh", h.refreshToken, jwt)

	ug := admin.Group("/users", jwt, roleMiddleware(user.RoleRoot))
	ug.GET("", h.query)
	ug.POST("", h.create)
	ug.GET("/roles", h.queryRoles)
	ug.PUT("/:id/role", h.setRole)
}

// Handlers

func (h *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(h.validate); err != nil {
		return err
	}

	claims, err := h.auth.authenticate(ctx, data.Email, data.Password)
	if err != nil {
		return err
	}
	token, err := h.auth.generateToken(claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (h *userApi) refreshToken(ctx echo.Context) error {
	token, err := h.auth.refreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (h *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := h.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (h *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	reqCtx := ctx.Request().Context()
	if err := data.Validate(reqCtx, h.validate, h.svc); err != nil {
		return err
	}

	usr, err := h.svc.Create(reqCtx, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (h *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (h *userApi) setRole(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data user.UpdateRole
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRole")
	}
	if err := data.Validate(h.validate); err != nil {
		return err
	}

	if _, err := h.svc.SetRole(ctx.Request().Context(), id, data.Role); err != nil {
		return errors.Wrap(err, "setting role")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

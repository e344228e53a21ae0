package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pogilapp/server/core/activity"
	"github.com/pogilapp/server/core/course"
	"github.com/pogilapp/server/core/user"
)

const (
	courseContextKey   = "course"
	instanceContextKey = "instance"
)

// roleMiddleware lets through tokens whose role ranks at or above role.
func roleMiddleware(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			usr := user.User{Role: claims.Role}
			if usr.HasRoleAtLeast(role) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// courseMiddleware loads the `:courseId` course into the context.
// With manage set, only its instructor or root get through.
func courseMiddleware(auth *authenticator, svc course.Service, manage bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := idParam(ctx, "courseId")
			if err != nil {
				return err
			}
			c, err := svc.Get(ctx.Request().Context(), id)
			if err != nil {
				return errors.Wrap(err, "finding course")
			}
			if manage {
				usr, err := auth.contextUser(ctx)
				if err != nil {
					return err
				}
				if !course.CanManage(usr, c) {
					return errHttpForbidden
				}
			}
			ctx.Set(courseContextKey, c)
			return next(ctx)
		}
	}
}

func contextCourse(ctx echo.Context) course.Course {
	c, _ := ctx.Get(courseContextKey).(course.Course)
	return c
}

// instanceMiddleware loads the `:id` activity instance into the context.
func instanceMiddleware(svc activity.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := idParam(ctx, "id")
			if err != nil {
				return err
			}
			inst, err := svc.GetInstance(ctx.Request().Context(), id)
			if err != nil {
				return errors.Wrap(err, "finding activity instance")
			}
			ctx.Set(instanceContextKey, inst)
			return next(ctx)
		}
	}
}

func contextInstance(ctx echo.Context) activity.Instance {
	inst, _ := ctx.Get(instanceContextKey).(activity.Instance)
	return inst
}

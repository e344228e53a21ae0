package echoapi

import (
	"net/http"
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/activity"
	"github.com/pogilapp/server/core/course"
	"github.com/pogilapp/server/core/user"
)

var (
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")

	// sentinel errors answered with their own message
	sentinelCodes = map[error]int{
		user.ErrNotFound:             http.StatusNotFound,
		course.ErrNotFound:           http.StatusNotFound,
		activity.ErrActivityNotFound: http.StatusNotFound,
		activity.ErrInstanceNotFound: http.StatusNotFound,
		activity.ErrNoSheetURL:       http.StatusNotFound,
		activity.ErrNotAuthorized:    http.StatusForbidden,
	}
)

// sentinelCode looks cause up in sentinelCodes; slice errors such as validator.ValidationErrors are not hashable.
func sentinelCode(cause error) (int, bool) {
	if cause == nil || !reflect.TypeOf(cause).Comparable() {
		return 0, false
	}
	sc, ok := sentinelCodes[cause]
	return sc, ok
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if sc, ok := sentinelCode(cause); ok {
			cause = echo.NewHTTPError(sc, cause.Error())
		}

		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			message = core.TranslateErrors(origErr, translator)
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr = user.User{ID: claims.UserID(), Name: claims.Name, Email: claims.Email}
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				logger.Error("writing error response", err)
			}
		}
	}
}

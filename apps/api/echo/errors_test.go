package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/activity"
	"github.com/pogilapp/server/core/course"
	testutil "github.com/pogilapp/server/tests"
)

func Test_appHTTPErrorHandler(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	activity.InitValidators(validate, translator)

	fieldErrs := validate.Struct(SetGroupsRequest{Groups: []activity.NewGroup{
		{Members: []activity.NewMember{{StudentID: 1, Role: "boss"}}},
	}})
	require.IsType(t, validator.ValidationErrors{}, fieldErrs)

	var shutdowns int
	handler := newAppHTTPErrorHandler(testutil.NewLogger(), translator, func() { shutdowns++ })

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantData []byte
	}{
		{
			name: "Field errors", err: errors.Wrap(fieldErrs, "validating"), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"role": "invalid role; expected one of facilitator, spokesperson, analyst or qc"}),
		},
		{
			name: "Validation message", err: core.NewValidationMessage("Missing userId"), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: "Missing userId"}),
		},
		{
			name: "Sentinel", err: errors.Wrap(course.ErrNotFound, "loading course"), wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: course.ErrNotFound.Error()}),
		},
		{
			name: "Forbidden sentinel", err: activity.ErrNotAuthorized, wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "Not authorized to start this activity."}),
		},
		{
			name: "HTTP error", err: errHttpForbidden, wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Server error", err: errors.New("boom"), wantCode: http.StatusInternalServerError,
			wantData: marshalObj(t, httpErr{Error: http.StatusText(http.StatusInternalServerError)}),
		},
		{
			name: "Shutdown", err: errors.Wrap(core.NewShutdownError("integrity"), "saving"), wantCode: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			ctx := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

			require.NotPanics(t, func() { handler(tt.err, ctx) })
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantData != nil {
				eq, err := jsonBytesEqual(tt.wantData, rec.Body.Bytes())
				require.NoError(t, err)
				assert.True(t, eq, rec.Body.String())
			}
		})
	}
	assert.Equal(t, 1, shutdowns)
}

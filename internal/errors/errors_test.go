package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsvalues/PACS-DataBridge/internal/logger"
	"github.com/bsvalues/PACS-DataBridge/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestContext creates a test Gin context with logger and request ID in context.
func setupTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	c.Set(middleware.LoggerKey, logger.Nop())
	c.Set(middleware.RequestIDKey, "test-request-id")
	return c, w
}

func parseErrorResponse(t *testing.T, body *bytes.Buffer) ErrorResponse {
	var response ErrorResponse
	err := json.Unmarshal(body.Bytes(), &response)
	require.NoError(t, err, "Failed to parse error response JSON")
	return response
}

func TestResponders(t *testing.T) {
	tests := []struct {
		name    string
		respond func(c *gin.Context)
		status  int
		code    string
		message string
	}{
		{"not found", func(c *gin.Context) { NotFound(c, "Import job not found") }, http.StatusNotFound, ErrNotFound, "Import job not found"},
		{"bad request", func(c *gin.Context) { BadRequest(c, "Invalid input", nil) }, http.StatusBadRequest, ErrBadRequest, "Invalid input"},
		{"conflict", func(c *gin.Context) { Conflict(c, "Job already finished") }, http.StatusConflict, ErrConflict, "Job already finished"},
		{"unavailable", func(c *gin.Context) {
			ServiceUnavailable(c, "Database unavailable", errors.New("dial tcp: refused"))
		}, http.StatusServiceUnavailable, ErrServiceUnavailable, "Database unavailable"},
		{"internal", func(c *gin.Context) {
			InternalServerError(c, "An unexpected error occurred", errors.New("boom"))
		}, http.StatusInternalServerError, ErrInternalServer, "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := setupTestContext()
			tt.respond(c)

			assert.Equal(t, tt.status, w.Code)
			assert.True(t, c.IsAborted(), "Expected the handler chain to be aborted")

			response := parseErrorResponse(t, w.Body)
			assert.Equal(t, tt.code, response.Error.Code)
			assert.Equal(t, tt.message, response.Error.Message)
			assert.Equal(t, "test-request-id", response.Error.RequestID)
			assert.Nil(t, response.Error.Details)
			assert.NotContains(t, w.Body.String(), "refused", "internal errors are never exposed")
		})
	}
}

func TestBadRequest_WithDetails(t *testing.T) {
	c, w := setupTestContext()

	BadRequest(c, "Invalid input", map[string]interface{}{"field": "importType"})

	response := parseErrorResponse(t, w.Body)
	assert.Equal(t, ErrBadRequest, response.Error.Code)
	assert.Equal(t, "importType", response.Error.Details["field"])
}

type importBody struct {
	ImportType string `json:"importType" binding:"required,oneof=permits property"`
	Source     string `json:"source" binding:"required"`
}

func bindAndReport(t *testing.T, body string) ErrorResponse {
	t.Helper()
	c, w := setupTestContext()
	c.Request = httptest.NewRequest(http.MethodPost, "/imports", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var req importBody
	err := c.ShouldBindJSON(&req)
	require.Error(t, err)
	BindError(c, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	return parseErrorResponse(t, w.Body)
}

func TestBindError(t *testing.T) {
	t.Run("validation failures list fields", func(t *testing.T) {
		response := bindAndReport(t, `{"importType":"boats"}`)
		assert.Equal(t, ErrValidation, response.Error.Code)
		assert.Equal(t, "Must be one of: permits property", response.Error.Details["ImportType"])
		assert.Equal(t, "This field is required", response.Error.Details["Source"])
	})

	t.Run("malformed JSON", func(t *testing.T) {
		response := bindAndReport(t, `{"importType":`)
		assert.Equal(t, ErrBadRequest, response.Error.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		response := bindAndReport(t, ``)
		assert.Equal(t, ErrBadRequest, response.Error.Code)
		assert.Equal(t, "Request body is required", response.Error.Message)
	})

	t.Run("wrong field type", func(t *testing.T) {
		response := bindAndReport(t, `{"importType": 7, "source": "x"}`)
		assert.Equal(t, ErrBadRequest, response.Error.Code)
		assert.Equal(t, "importType", response.Error.Details["field"])
	})
}

func TestValidationError(t *testing.T) {
	c, w := setupTestContext()

	type TestStruct struct {
		Confidence float64 `validate:"gte=0,lte=100"`
		Address    string  `validate:"required"`
	}
	err := validator.New().Struct(TestStruct{Confidence: 120})
	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))

	ValidationError(c, validationErrors)

	response := parseErrorResponse(t, w.Body)
	assert.Equal(t, ErrValidation, response.Error.Code)
	assert.Equal(t, "Must be less than or equal to 100", response.Error.Details["Confidence"])
	assert.Equal(t, "This field is required", response.Error.Details["Address"])
}

func TestFormatValidationError(t *testing.T) {
	tests := []struct {
		tag      string
		param    string
		expected string
	}{
		{"required", "", "This field is required"},
		{"min", "5", "Value is too short or small (minimum: 5)"},
		{"max", "100", "Value is too long or large (maximum: 100)"},
		{"gte", "0", "Must be greater than or equal to 0"},
		{"lte", "100", "Must be less than or equal to 100"},
		{"oneof", "permits property", "Must be one of: permits property"},
		{"uuid", "", "Must be a valid UUID"},
		{"required_without", "StagingRecordID", "Required when StagingRecordID is not set"},
		{"unknown_tag", "", "Validation failed for tag: unknown_tag"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatValidationError(&mockFieldError{tag: tt.tag, param: tt.param}))
		})
	}
}

func TestErrorResponseWithoutContext(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)

	NotFound(c, "Resource not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	response := parseErrorResponse(t, w.Body)
	assert.Equal(t, ErrNotFound, response.Error.Code)
	assert.Empty(t, response.Error.RequestID)
}

// mockFieldError is a mock implementation of validator.FieldError for testing.
type mockFieldError struct {
	tag   string
	param string
}

func (m *mockFieldError) Tag() string                    { return m.tag }
func (m *mockFieldError) ActualTag() string              { return m.tag }
func (m *mockFieldError) Namespace() string              { return "" }
func (m *mockFieldError) StructNamespace() string        { return "" }
func (m *mockFieldError) Field() string                  { return "TestField" }
func (m *mockFieldError) StructField() string            { return "TestField" }
func (m *mockFieldError) Value() interface{}             { return nil }
func (m *mockFieldError) Param() string                  { return m.param }
func (m *mockFieldError) Kind() reflect.Kind             { return reflect.String }
func (m *mockFieldError) Type() reflect.Type             { return nil }
func (m *mockFieldError) Translate(ut.Translator) string { return "" }
func (m *mockFieldError) Error() string                  { return "" }

package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jwalitptl/care-scheduling/pkg/errors"
	"github.com/jwalitptl/care-scheduling/pkg/validator"
)

// Response wraps all API responses
type Response struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    interface{}            `json:"data,omitempty"`
	Errors  []validator.FieldError `json:"errors,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// RespondWithSuccess sends a 200 response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, NewSuccessResponse(data))
}

// RespondCreated sends a 201 response
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, NewSuccessResponse(data))
}

// RespondWithError maps err to its HTTP status. Internal details are never
// echoed for 5xx responses.
func RespondWithError(c *gin.Context, err error) {
	status, resp := ErrorResponse(err)
	c.AbortWithStatusJSON(status, resp)
}

// ErrorResponse builds the status and body for err.
func ErrorResponse(err error) (int, *Response) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, NewErrorResponse("internal server error")
	}

	status := appErr.StatusCode()
	if status >= http.StatusInternalServerError {
		return status, NewErrorResponse("internal server error")
	}

	resp := NewErrorResponse(appErr.Message)
	if appErr.Code == errors.ErrValidation {
		resp.Errors = validator.FieldErrors(appErr.Err)
	}
	return status, resp
}

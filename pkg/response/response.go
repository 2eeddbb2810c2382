package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the wire format shared by every endpoint. Success responses carry
// data; error responses carry a null data field plus an errors payload
// (validation details or the message repeated for single-cause failures).
type Envelope[T any] struct {
	StatusCode int    `json:"statusCode"`
	Data       T      `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
	Errors     any    `json:"errors,omitempty"`
}

// NewSuccess builds a success envelope without writing it.
func NewSuccess[T any](status int, data T, message string) Envelope[T] {
	if status == 0 {
		status = http.StatusOK
	}
	return Envelope[T]{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    true,
	}
}

// NewError builds an error envelope without writing it. Data is always null.
func NewError(status int, message string, errs any) Envelope[any] {
	if status == 0 {
		status = http.StatusBadRequest
	}
	if errs == nil {
		errs = []string{message}
	}
	return Envelope[any]{
		StatusCode: status,
		Data:       nil,
		Message:    message,
		Success:    false,
		Errors:     errs,
	}
}

// Success writes a success envelope to the response.
func Success[T any](c *gin.Context, status int, data T, message string) {
	resp := NewSuccess(status, data, message)
	c.JSON(resp.StatusCode, resp)
}

// Error writes an error envelope to the response.
func Error(c *gin.Context, status int, message string, errs any) {
	resp := NewError(status, message, errs)
	c.JSON(resp.StatusCode, resp)
}

// AbortError writes an error envelope and aborts the handler chain; for middleware.
func AbortError(c *gin.Context, status int, message string, errs any) {
	resp := NewError(status, message, errs)
	c.AbortWithStatusJSON(resp.StatusCode, resp)
}

package httputil

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/rch-registry/pkg/errors"
)

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse carries a confirmation message and the affected resource
type MessageResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// RespondWithData sends data as the bare response body
func RespondWithData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// RespondWithMessage sends a {message, data} body
func RespondWithMessage(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, MessageResponse{Message: message, Data: data})
}

// RespondWithError maps err onto a status code and sends {error}. Errors that
// are not an AppError are reported as internal without leaking their text.
func RespondWithError(c *gin.Context, err error) {
	status, message := StatusAndMessage(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message})
}

func StatusAndMessage(err error) (int, string) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode(), appErr.Message
	}
	return http.StatusInternalServerError, "internal server error"
}

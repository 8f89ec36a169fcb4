package response

import (
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enroll-api/internal/models"
	appErrors "github.com/noah-isme/enroll-api/pkg/errors"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data       interface{}        `json:"data,omitempty"`
	Pagination *models.Pagination `json:"pagination,omitempty"`
	Message    string             `json:"message,omitempty"`
}

// JSON sends a success response with optional pagination metadata. Nil
// slices render as empty arrays so list endpoints never serialize null data.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, Envelope{Data: emptyIfNilSlice(data), Pagination: pagination})
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error sends an error response; the status encodes the error kind and the
// body carries only the message, never the wrapped cause.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(appErr.Status, gin.H{"message": appErr.Message})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func emptyIfNilSlice(data interface{}) interface{} {
	if data == nil {
		return nil
	}
	if v := reflect.ValueOf(data); v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return data
}

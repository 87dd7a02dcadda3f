// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response envelope shared by every endpoint and the
// helpers that write it. Success bodies carry the payload under "data";
// failures are rendered by the middleware boundary so handlers, middleware
// and panic recovery produce the same shape.
//
// Conventions:
//   - `ok()` writes {"success": true, "data": ...} with the given status.
//   - `fail()` takes any error; taxonomy errors keep their category, anything
//     else is rendered as a generic internal error and logged in full.
//   - `bindJSON()` turns binder failures into validation errors naming the
//     offending JSON field.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "success": false,
//	  "error": { "code": "NOT_FOUND_ERROR", "message": "team not found" },
//	  "requestId": "123e4567-e89b-12d3-a456-426614174000"
//	}
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "success": true, "data": { "id": "abc123", "name": "Platform" } }
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/teamhub/internal/apperr"
	"github.com/tbourn/teamhub/internal/http/middleware"
)

// SuccessEnvelope is the success body. Data holds the endpoint payload.
type SuccessEnvelope struct {
	Success bool `json:"success" example:"true"`
	Data    any  `json:"data"`
}

// ErrorResponse documents the failure body in OpenAPI.
type ErrorResponse = middleware.ErrorEnvelope

func init() {
	// Report JSON names in validation errors instead of Go field names.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// fail renders err as the failure envelope and aborts the request.
func fail(c *gin.Context, err error) {
	middleware.AbortWithError(c, err)
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error envelopes without directly depending on unexported helpers.
func Fail(c *gin.Context, err error) { fail(c, err) }

// ok writes a success envelope around data.
func ok(c *gin.Context, status int, data any) {
	c.JSON(status, SuccessEnvelope{Success: true, Data: data})
}

// noContent writes an HTTP 204 No Content response.
//
// Used when the operation succeeds but there is no response body.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// bindJSON decodes the request body into dst and validates its binding tags.
// Every failure comes back as a validation error; oversized bodies keep the
// 413 status set by the body limit.
func bindJSON(c *gin.Context, dst any) error {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return nil
	}
	return bindError(err)
}

func bindError(err error) *apperr.Error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return middleware.BodyTooLarge(mbe.Limit)
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Validation(fieldMessage(fe), map[string]any{
			apperr.MetaField: fe.Field(),
		})
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperr.Validation("invalid type for field", map[string]any{
			apperr.MetaField: typeErr.Field,
		})
	}

	if errors.Is(err, io.EOF) {
		return apperr.Validation("request body required", nil)
	}
	return apperr.Validation("invalid JSON body", nil)
}

// fieldMessage turns a validator tag failure into a short client message.
func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "uuid", "uuid4":
		return fe.Field() + " must be a UUID"
	default:
		return fe.Field() + " is invalid"
	}
}

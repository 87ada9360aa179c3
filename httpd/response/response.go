// Package response implements the uniform JSON envelopes of the API:
// payloads are returned as-is, errors as {"error":{"code","message"}}.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oddbit-project/s3browser/apperr"
)

// ErrorDetail is the body of an error envelope
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope wraps every non-2xx JSON response
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// JSON writes a payload with the given status
func JSON(ctx *gin.Context, status int, payload interface{}) {
	ctx.JSON(status, payload)
}

// NoContent writes an empty 204 response
func NoContent(ctx *gin.Context) {
	ctx.Status(http.StatusNoContent)
}

// Error maps err to its HTTP status and writes the error envelope,
// aborting the handler chain
func Error(ctx *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	ctx.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: ErrorDetail{
			Code:    string(apperr.KindOf(err)),
			Message: apperr.Message(err),
		},
	})
}

// AbortWithKind writes an error envelope for a kind and message without
// building an error value first
func AbortWithKind(ctx *gin.Context, kind apperr.Kind, message string) {
	Error(ctx, apperr.New(kind, message))
}

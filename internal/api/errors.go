package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/integritystudio/alephauto/internal/apperr"
	"github.com/integritystudio/alephauto/internal/clock"
)

// statusFor maps an apperr.Kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnknownPipeline, apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindNotCancellable:
		return http.StatusConflict
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as the standard JSON error envelope: kind, a
// short human message, and an opaque correlation id. Stack traces are
// never included.
func writeError(c *gin.Context, ids *clock.IDGenerator, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	body := errorBody{}
	body.Error.Kind = string(kind)
	body.Error.Message = err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Error.Message = ae.Message
	}
	body.Error.CorrelationID = ids.NewToken()

	c.JSON(status, body)
}

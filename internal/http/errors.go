package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"resume-matcher/internal/domain"
)

// statusFor maps domain errors to response codes. Order matters: a fetch
// failure arrives wrapped in ErrUpstream.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrQuotaExceeded), errors.Is(err, domain.ErrEntitlement):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUpstream), errors.Is(err, domain.ErrFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	switch status {
	case http.StatusInternalServerError:
		h.logger.WithField("request_id", requestID(c)).WithError(err).Error("request failed")
		message = "internal server error"
	case http.StatusBadGateway:
		h.logger.WithField("request_id", requestID(c)).WithError(err).Warn("upstream failure")
	default:
		if domain.IsClientError(err) {
			h.logger.WithField("request_id", requestID(c)).WithError(err).Debug("request rejected")
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	h.writeError(c, fmt.Errorf("%w: %w", domain.ErrInput, err))
}

package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/transync/internal/gengo"
	"horse.fit/transync/internal/translation"
)

// handleCallback receives job updates pushed by the translation service. The
// record arrives as JSON in the "job" form field. The engine re-fetches the
// record before applying it, so the pushed copy only names what changed.
func (s *Server) handleCallback(c echo.Context) error {
	if !s.callbackAuthorized(c) {
		s.logger.Warn().Str("remote_ip", c.RealIP()).Msg("callback with wrong secret")
		return failForbidden(c, "Invalid callback secret")
	}

	raw := strings.TrimSpace(c.FormValue("job"))
	if raw == "" {
		return failValidation(c, map[string]string{"job": "is required"})
	}

	var record gengo.Job
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return failValidation(c, map[string]string{"job": "must be a JSON job record"})
	}

	result, err := s.engine.HandleCallback(c.Request().Context(), record)
	if err != nil {
		switch {
		case errors.Is(err, translation.ErrMalformedToken):
			s.logger.Warn().Err(err).Str("custom_data", record.CustomData).Msg("callback with unknown token")
			return failValidation(c, map[string]string{"custom_data": "is not a transync token"})
		case errors.Is(err, translation.ErrJobNotFound):
			s.logger.Warn().Err(err).Str("custom_data", record.CustomData).Msg("callback for unknown job")
			return failNotFound(c, "Job not found")
		case errors.Is(err, translation.ErrCallbackUnverified):
			return failForbidden(c, "Callback does not match the translation service")
		}
		s.logger.Error().Err(err).Str("remote_job_id", record.JobID.String()).Msg("callback failed")
		return internalError(c, "Failed to apply callback")
	}
	return success(c, result)
}

func (s *Server) callbackAuthorized(c echo.Context) bool {
	if s.opts.CallbackSecret == "" {
		return true
	}
	got := c.QueryParam("secret")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.CallbackSecret)) == 1
}

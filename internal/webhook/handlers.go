package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lifxd/internal/eventbus"
	"github.com/dokzlo13/lifxd/internal/lifx"
)

// SourceWebhook marks invocations triggered over HTTP
const SourceWebhook = "webhook"

// IdempotencyHeader carries an optional caller-chosen deduplication key
const IdempotencyHeader = "Idempotency-Key"

const maxBodyBytes = 1 << 20

// handleAction publishes an action trigger. The body, if any, is a JSON
// object used as the action args.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.deps.Actions.HasAction(name) {
		writeError(w, http.StatusNotFound, "unknown action "+name)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	args := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			writeError(w, http.StatusBadRequest, "body must be a JSON object")
			return
		}
	}

	event := eventbus.NewEvent(eventbus.EventTypeWebhook, map[string]any{
		"action_name":     name,
		"action_args":     args,
		"idempotency_key": r.Header.Get(IdempotencyHeader),
		"request_id":      middleware.GetReqID(r.Context()),
		"source":          SourceWebhook,
	})

	if !s.deps.Bus.Publish(event) {
		writeError(w, http.StatusServiceUnavailable, "event queue full")
		return
	}

	log.Info().
		Str("action", name).
		Str("event_id", event.ID).
		Msg("Action accepted")

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "accepted",
		"event_id": event.ID,
	})
}

func (s *Server) handleLights(w http.ResponseWriter, r *http.Request) {
	lights, err := s.deps.Lights.ListLights(r.Context(), chi.URLParam(r, "selector"))
	if err != nil {
		writeLIFXError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lights)
}

func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := s.deps.Lights.ListScenes(r.Context())
	if err != nil {
		writeLIFXError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scenes)
}

func (s *Server) handleRateLimit(w http.ResponseWriter, _ *http.Request) {
	rl := s.deps.Lights.RateLimit()
	if rl == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rateLimitView(*rl))
}

func (s *Server) handleCachedLights(w http.ResponseWriter, _ *http.Request) {
	lights, updated, err := s.deps.Cache.Lights()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read light cache")
		writeError(w, http.StatusInternalServerError, "failed to read cache")
		return
	}
	resp := map[string]any{"lights": lights}
	if !updated.IsZero() {
		resp["updated_at"] = updated.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSchedules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Schedules.Day(time.Now()))
}

func rateLimitView(rl lifx.RateLimit) map[string]any {
	view := map[string]any{
		"limit":     rl.Limit,
		"remaining": rl.Remaining,
		"reset":     rl.Reset,
	}
	if rl.Reset > 0 {
		view["reset_at"] = rl.ResetTime().UTC().Format(time.RFC3339)
	}
	return view
}

// statusFor maps a LIFX error to the status returned to HTTP callers
func statusFor(err error) int {
	switch lifx.KindOf(err) {
	case lifx.KindRateLimited:
		return http.StatusTooManyRequests
	case lifx.KindAPI:
		var apiErr *lifx.APIError
		if errors.As(err, &apiErr) {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	case lifx.KindTransport, lifx.KindProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeLIFXError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := map[string]any{
		"error": err.Error(),
		"kind":  string(lifx.KindOf(err)),
	}

	var apiErr *lifx.APIError
	if errors.As(err, &apiErr) {
		resp["error"] = apiErr.Message
		resp["warnings"] = apiErr.Warnings
	}
	var rlErr *lifx.RateLimitError
	if errors.As(err, &rlErr) {
		resp["ratelimit"] = rateLimitView(rlErr.RateLimit)
		if rlErr.RateLimit.Reset > 0 {
			if wait := time.Until(rlErr.RateLimit.ResetTime()); wait > 0 {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(wait.Seconds())+1, 10))
			}
		}
	}

	log.Warn().Err(err).Int("status", status).Msg("LIFX call failed")
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

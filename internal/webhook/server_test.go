package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lifxd/internal/eventbus"
	"github.com/dokzlo13/lifxd/internal/lifx"
	"github.com/dokzlo13/lifxd/internal/scheduler"
)

type stubActions map[string]bool

func (a stubActions) HasAction(name string) bool { return a[name] }

type stubLights struct {
	lights    []lifx.Light
	scenes    []lifx.Scene
	err       error
	rateLimit *lifx.RateLimit
	selector  string
}

func (s *stubLights) ListLights(_ context.Context, selector string) ([]lifx.Light, error) {
	s.selector = selector
	return s.lights, s.err
}

func (s *stubLights) ListScenes(context.Context) ([]lifx.Scene, error) {
	return s.scenes, s.err
}

func (s *stubLights) RateLimit() *lifx.RateLimit { return s.rateLimit }

type stubCache struct{ lights []lifx.Light }

func (c stubCache) Lights() ([]lifx.Light, time.Time, error) {
	return c.lights, time.Unix(1735372800, 0), nil
}

type stubSchedules []scheduler.Entry

func (s stubSchedules) Day(time.Time) []scheduler.Entry { return s }

func newTestServer(t *testing.T, lights *stubLights) (*Server, chan eventbus.Event) {
	t.Helper()
	bus := eventbus.NewWithConfig(1, 8)
	t.Cleanup(func() { bus.Close(context.Background()) })

	events := make(chan eventbus.Event, 8)
	bus.Subscribe(eventbus.EventTypeWebhook, func(e eventbus.Event) { events <- e })

	return NewServer("127.0.0.1", 0, Deps{
		Bus:       bus,
		Actions:   stubActions{"toggle": true},
		Lights:    lights,
		Cache:     stubCache{lights: []lifx.Light{{ID: "d073d5"}}},
		Schedules: stubSchedules{{ID: "evening", When: "22:00", Action: "toggle"}},
	}), events
}

func do(t *testing.T, s *Server, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandleAction_PublishesEvent(t *testing.T) {
	s, events := newTestServer(t, &stubLights{})

	rec := do(t, s, http.MethodPost, "/actions/toggle", `{"selector":"group:Office","duration":1.5}`,
		map[string]string{IdempotencyHeader: "btn-42"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "accepted", decode(t, rec)["status"])

	select {
	case e := <-events:
		require.Equal(t, "toggle", e.String("action_name"))
		require.Equal(t, "btn-42", e.String("idempotency_key"))
		require.Equal(t, SourceWebhook, e.String("source"))
		require.Equal(t, map[string]any{"selector": "group:Office", "duration": 1.5}, e.Data["action_args"])
	case <-time.After(2 * time.Second):
		t.Fatal("no webhook event")
	}
}

func TestHandleAction_Rejects(t *testing.T) {
	s, events := newTestServer(t, &stubLights{})

	require.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/actions/dance", "", nil).Code)
	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/actions/toggle", "[1,2]", nil).Code)
	require.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/actions/toggle", "", nil).Code)

	select {
	case e := <-events:
		t.Fatalf("unexpected event %v", e.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleLights(t *testing.T) {
	lights := &stubLights{lights: []lifx.Light{{ID: "d073d5", Label: "Desk", Power: "on"}}}
	s, _ := newTestServer(t, lights)

	rec := do(t, s, http.MethodGet, "/lights/label:Desk", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "label:Desk", lights.selector)

	var got []lifx.Light
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, lights.lights, got)

	do(t, s, http.MethodGet, "/lights", "", nil)
	require.Empty(t, lights.selector, "empty selector is left to the client")
}

func TestLIFXErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		kind string
	}{
		{"rate_limited", &lifx.RateLimitError{RateLimit: lifx.RateLimit{Limit: 120}}, http.StatusTooManyRequests, "rate_limited"},
		{"api_429", &lifx.APIError{StatusCode: 429, Message: "slow down", Warnings: json.RawMessage("{}")}, http.StatusTooManyRequests, "api"},
		{"api_404", &lifx.APIError{StatusCode: 404, Message: "Could not find light", Warnings: json.RawMessage("[]")}, http.StatusNotFound, "api"},
		{"transport", &lifx.TransportError{Method: "GET", Path: "scenes", Err: errors.New("refused")}, http.StatusBadGateway, "transport"},
		{"protocol", &lifx.ProtocolError{StatusCode: 502, Body: "<html>"}, http.StatusBadGateway, "protocol"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, &stubLights{err: tt.err})
			rec := do(t, s, http.MethodGet, "/scenes", "", nil)
			require.Equal(t, tt.want, rec.Code)
			require.Equal(t, tt.kind, decode(t, rec)["kind"])
		})
	}
}

func TestRateLimitView(t *testing.T) {
	lights := &stubLights{}
	s, _ := newTestServer(t, lights)

	require.Equal(t, http.StatusNoContent, do(t, s, http.MethodGet, "/ratelimit", "", nil).Code)

	lights.rateLimit = &lifx.RateLimit{Limit: 120, Remaining: 7, Reset: 1735372800}
	rec := do(t, s, http.MethodGet, "/ratelimit", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	require.Equal(t, 7.0, got["remaining"])
	require.Equal(t, "2024-12-28T08:00:00Z", got["reset_at"])
}

func TestCachedLightsAndSchedules(t *testing.T) {
	s, _ := newTestServer(t, &stubLights{})

	rec := do(t, s, http.MethodGet, "/cache/lights", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	require.Len(t, got["lights"], 1)
	require.Equal(t, "2024-12-28T08:00:00Z", got["updated_at"])

	rec = do(t, s, http.MethodGet, "/schedules", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"evening"`)
}

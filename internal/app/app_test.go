package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lifxd/internal/config"
	"github.com/dokzlo13/lifxd/internal/eventbus"
	"github.com/dokzlo13/lifxd/internal/lifx"
)

type invocation struct {
	action, key, source, defID string
	args                       map[string]any
}

type fakeInvoker struct {
	mu    sync.Mutex
	calls []invocation
	err   error
	seen  chan struct{}
}

func (f *fakeInvoker) InvokeThroughLua(_ context.Context, actionName string, args map[string]any, key, source, defID string) error {
	f.mu.Lock()
	f.calls = append(f.calls, invocation{actionName, key, source, defID, args})
	f.mu.Unlock()
	f.seen <- struct{}{}
	return f.err
}

func TestEventService_DispatchesWebhookAndSchedule(t *testing.T) {
	bus := eventbus.NewWithConfig(1, 8)
	defer bus.Close(context.Background())

	inv := &fakeInvoker{seen: make(chan struct{}, 4), err: errors.New("lights offline")}
	NewEventService(inv, bus).Start(context.Background())

	bus.Publish(eventbus.NewEvent(eventbus.EventTypeWebhook, map[string]any{
		"action_name":     "toggle",
		"action_args":     map[string]any{"selector": "all"},
		"idempotency_key": "btn-1",
		"source":          "webhook",
	}))
	bus.Publish(eventbus.NewEvent(eventbus.EventTypeSchedule, map[string]any{
		"schedule_id":   "evening",
		"occurrence_id": "evening/1735372800",
		"action_name":   "activate_scene",
		"action_args":   map[string]any{"scene_id": "abc"},
		"source":        "scheduler",
	}))
	bus.Publish(eventbus.NewEvent(eventbus.EventTypeRateLimit, map[string]any{
		"limit": 120, "remaining": 3, "reset": int64(1735372800),
	}))

	for i := 0; i < 2; i++ {
		select {
		case <-inv.seen:
		case <-time.After(2 * time.Second):
			t.Fatal("event not dispatched")
		}
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	require.Equal(t, invocation{"toggle", "btn-1", "webhook", "", map[string]any{"selector": "all"}}, inv.calls[0])
	require.Equal(t, invocation{"activate_scene", "evening/1735372800", "scheduler", "evening", map[string]any{"scene_id": "abc"}}, inv.calls[1])
}

func TestHealthService_ReadyAfterStart(t *testing.T) {
	cfg, err := config.Parse([]byte("lifx: {token: t}"))
	require.NoError(t, err)
	h := NewHealthService(cfg)

	get := func(path string) int {
		rec := httptest.NewRecorder()
		h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	require.Equal(t, http.StatusOK, get("/health"))
	require.Equal(t, http.StatusServiceUnavailable, get("/ready"))
	h.SetReady(true)
	require.Equal(t, http.StatusOK, get("/ready"))
}

// fakeCloud is a minimal LIFX API recording the commands it receives
type fakeCloud struct {
	mu       sync.Mutex
	commands []string
	seen     chan string
}

func (c *fakeCloud) handler() http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Limit", "120")
		w.Header().Set("X-RateLimit-Remaining", "119")
		w.Header().Set("X-RateLimit-Reset", "1735372800")
		fmt.Fprint(w, body)
	}
	mux.HandleFunc("GET /v1/lights/all", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, `[{"id":"d073d5","label":"Desk","power":"off","brightness":1}]`)
	})
	mux.HandleFunc("GET /v1/scenes", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, `[]`)
	})
	mux.HandleFunc("POST /v1/lights/{selector}/toggle", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.commands = append(c.commands, "toggle "+r.PathValue("selector"))
		c.mu.Unlock()
		reply(w, `{"results":[{"id":"d073d5","label":"Desk","status":"ok"}]}`)
		c.seen <- "toggle"
	})
	return mux
}

func TestServices_ScriptedActionFromWebhookEvent(t *testing.T) {
	cloud := &fakeCloud{seen: make(chan string, 4)}
	srv := httptest.NewServer(cloud.handler())
	defer srv.Close()

	dir := t.TempDir()
	script := filepath.Join(dir, "main.lua")
	require.NoError(t, os.WriteFile(script, []byte(`
		local action = require("action")
		action.define("porch", function(ctx, args)
			return ctx.run("toggle", {selector = "label:Porch"})
		end)
	`), 0o644))

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
lifx:
  token: test
  base_url: %s/v1/
database:
  path: %s
script: main.lua
scheduler:
  enabled: true
  schedules:
    - id: poll
      every: 1h
      action: refresh_lights
`, srv.URL, filepath.Join(dir, "lifxd.sqlite"))))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	services, err := NewServices(cfg, filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		services.Close()
	}()
	require.NoError(t, services.Start(ctx))

	lights, _, err := services.Cache.Lights()
	require.NoError(t, err)
	require.Len(t, lights, 1, "startup warms the light cache")
	require.Equal(t, []string{"poll"}, services.Scheduler.Scheduler.IDs())

	services.LIFX.Bus.Publish(eventbus.NewEvent(eventbus.EventTypeWebhook, map[string]any{
		"action_name":     "porch",
		"action_args":     map[string]any{},
		"idempotency_key": "porch-1",
		"source":          "webhook",
	}))

	select {
	case <-cloud.seen:
	case <-time.After(3 * time.Second):
		t.Fatal("toggle never reached the API")
	}

	require.Eventually(t, func() bool { return services.Ledger.HasCompleted("porch-1") }, 2*time.Second, 10*time.Millisecond)

	cloud.mu.Lock()
	require.Equal(t, []string{"toggle label:Porch"}, cloud.commands)
	cloud.mu.Unlock()

	rl := services.LIFX.Client.RateLimit()
	require.NotNil(t, rl)
	require.Equal(t, 119, rl.Remaining)
}

func TestLIFXService_ResumesAfterRateLimitReset(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		remaining := "119"
		if calls.Add(1) == 1 {
			remaining = "0"
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Limit", "120")
		w.Header().Set("X-RateLimit-Remaining", remaining)
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	cfg, err := config.Parse([]byte(fmt.Sprintf("lifx: {token: t, base_url: %s/v1/}", srv.URL)))
	require.NoError(t, err)
	s := NewLIFXService(cfg, nil)
	defer s.Close()

	ctx := context.Background()
	_, err = s.Client.ListLights(ctx, "all")
	require.NoError(t, err)

	_, err = s.Client.ListLights(ctx, "all")
	require.ErrorIs(t, err, lifx.ErrRateLimited)
	require.Equal(t, int32(1), calls.Load())

	require.Eventually(t, func() bool { return s.Client.RateLimit() == nil }, 5*time.Second, 50*time.Millisecond)

	_, err = s.Client.ListLights(ctx, "all")
	require.NoError(t, err)
	require.Equal(t, 119, s.Client.RateLimit().Remaining)
}

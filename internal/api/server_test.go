package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/robgonnella/hashwatch/internal/adapter"
	"github.com/robgonnella/hashwatch/internal/api"
	"github.com/robgonnella/hashwatch/internal/config"
	"github.com/robgonnella/hashwatch/internal/core"
	"github.com/robgonnella/hashwatch/internal/discovery"
	"github.com/robgonnella/hashwatch/internal/event"
	"github.com/robgonnella/hashwatch/internal/exception"
	"github.com/robgonnella/hashwatch/internal/miner"
	mock_adapter "github.com/robgonnella/hashwatch/internal/mock/adapter"
	"github.com/robgonnella/hashwatch/internal/registry"
	"github.com/robgonnella/hashwatch/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, a *mock_adapter.MockAdapter) *api.Server {
	s, _ := newServerWithCore(t, a)
	return s
}

func newServerWithCore(t *testing.T, a *mock_adapter.MockAdapter) (*api.Server, *core.Core) {
	a.EXPECT().Kind().Return(miner.KindAxeOS).AnyTimes()

	c := core.New(
		*config.Default(),
		registry.New(nil),
		nil,
		adapter.NewCatalog(a),
		nil,
	)

	require.NoError(t, c.Load())

	return api.New(c, 8), c
}

func do(s *api.Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	var body api.ErrResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotNil(t, body.Error)
	return body.Error.Code
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, res *http.Response, n int) []sseEvent {
	scanner := bufio.NewScanner(res.Body)
	events := []sseEvent{}
	current := sseEvent{}

	for len(events) < n && scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "" && current.name != "":
			events = append(events, current)
			current = sseEvent{}
		}
	}

	require.Len(t, events, n)

	return events
}

// minerResponse mirrors the served miner view
type minerResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	PollInterval string `json:"pollInterval"`
	Revision     uint64 `json:"revision"`
	Pool         struct {
		URL  string `json:"url"`
		User string `json:"user"`
	} `json:"pool"`
}

const bitaxeBody = `{"id":"bitaxe-1","name":"bitaxe","kind":"axeos","address":"192.168.1.50","pollInterval":"30s"}`

func TestMinerRoutes(t *testing.T) {
	ctrl := gomock.NewController(t)

	defer ctrl.Finish()

	t.Run("adds lists and gets miners", func(st *testing.T) {
		s := newServer(st, mock_adapter.NewMockAdapter(ctrl))

		rec := do(s, http.MethodPost, "/v1/miners", bitaxeBody)
		require.Equal(st, http.StatusCreated, rec.Code)

		var added minerResponse
		require.NoError(st, json.NewDecoder(rec.Body).Decode(&added))
		assert.Equal(st, "bitaxe-1", added.ID)
		assert.Equal(st, "30s", added.PollInterval)

		rec = do(s, http.MethodGet, "/v1/miners", "")
		require.Equal(st, http.StatusOK, rec.Code)

		var list []minerResponse
		require.NoError(st, json.NewDecoder(rec.Body).Decode(&list))
		assert.Len(st, list, 1)

		rec = do(s, http.MethodGet, "/v1/miners/bitaxe-1", "")
		assert.Equal(st, http.StatusOK, rec.Code)

		rec = do(s, http.MethodGet, "/v1/miners/bitaxe-1/state", "")
		require.Equal(st, http.StatusOK, rec.Code)

		var cs state.ConnectionState
		require.NoError(st, json.NewDecoder(rec.Body).Decode(&cs))
		assert.Equal(st, state.Disconnected, cs.State)
	})

	t.Run("maps validation errors", func(st *testing.T) {
		s := newServer(st, mock_adapter.NewMockAdapter(ctrl))

		rec := do(s, http.MethodPost, "/v1/miners", bitaxeBody)
		require.Equal(st, http.StatusCreated, rec.Code)

		rec = do(s, http.MethodPost, "/v1/miners", bitaxeBody)
		assert.Equal(st, http.StatusConflict, rec.Code)
		assert.Equal(st, api.ErrConflict, errorCode(st, rec))

		rec = do(s, http.MethodPost, "/v1/miners", `{"kind":"antminer","address":"10.0.0.1"}`)
		assert.Equal(st, http.StatusBadRequest, rec.Code)
		assert.Equal(st, api.ErrBadParameter, errorCode(st, rec))

		rec = do(s, http.MethodPost, "/v1/miners", `{"kind":"axeos","address":"10.0.0.1","pollInterval":"soon"}`)
		assert.Equal(st, http.StatusBadRequest, rec.Code)

		rec = do(s, http.MethodPost, "/v1/miners", `{nope`)
		assert.Equal(st, http.StatusBadRequest, rec.Code)

		rec = do(s, http.MethodGet, "/v1/miners/bitaxe-1/snapshots?limit=-1", "")
		assert.Equal(st, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown ids are 404", func(st *testing.T) {
		s := newServer(st, mock_adapter.NewMockAdapter(ctrl))

		for _, r := range []struct{ method, path, body string }{
			{http.MethodGet, "/v1/miners/nope", ""},
			{http.MethodPut, "/v1/miners/nope", bitaxeBody},
			{http.MethodDelete, "/v1/miners/nope", ""},
			{http.MethodGet, "/v1/miners/nope/state", ""},
			{http.MethodGet, "/v1/miners/nope/snapshots", ""},
			{http.MethodPost, "/v1/miners/nope/settings", `{}`},
			{http.MethodDelete, "/v1/scans/nope", ""},
		} {
			rec := do(s, r.method, r.path, r.body)
			assert.Equal(st, http.StatusNotFound, rec.Code, r.path)
			assert.Equal(st, api.ErrEntityNotFound, errorCode(st, rec), r.path)
		}
	})

	t.Run("updates and removes miners", func(st *testing.T) {
		s := newServer(st, mock_adapter.NewMockAdapter(ctrl))

		require.Equal(st, http.StatusCreated, do(s, http.MethodPost, "/v1/miners", bitaxeBody).Code)

		rec := do(
			s,
			http.MethodPut,
			"/v1/miners/bitaxe-1",
			`{"name":"renamed","kind":"axeos","address":"192.168.1.51"}`,
		)
		require.Equal(st, http.StatusOK, rec.Code)

		var updated minerResponse
		require.NoError(st, json.NewDecoder(rec.Body).Decode(&updated))
		assert.Equal(st, "bitaxe-1", updated.ID)
		assert.Equal(st, "192.168.1.51", updated.Address)
		assert.Equal(st, uint64(2), updated.Revision)

		assert.Equal(st, http.StatusNoContent, do(s, http.MethodDelete, "/v1/miners/bitaxe-1", "").Code)
		assert.Equal(st, http.StatusNotFound, do(s, http.MethodGet, "/v1/miners/bitaxe-1", "").Code)
	})

	t.Run("never serves passwords", func(st *testing.T) {
		s, c := newServerWithCore(st, mock_adapter.NewMockAdapter(ctrl))

		body := `{"id":"webui-1","name":"s19","kind":"axeos","address":"192.168.1.60",` +
			`"username":"root","password":"device-secret",` +
			`"pool":{"url":"stratum+tcp://pool.example","port":3333,"user":"worker","password":"pool-secret"}}`

		rec := do(s, http.MethodPost, "/v1/miners", body)
		require.Equal(st, http.StatusCreated, rec.Code)
		assert.NotContains(st, rec.Body.String(), "secret")

		for _, path := range []string{"/v1/miners", "/v1/miners/webui-1"} {
			rec = do(s, http.MethodGet, path, "")
			require.Equal(st, http.StatusOK, rec.Code)
			assert.NotContains(st, rec.Body.String(), "secret", path)
			assert.NotContains(st, rec.Body.String(), "password", path)
			assert.Contains(st, rec.Body.String(), `"user":"worker"`, path)
		}

		// echoing the served view back keeps the stored credentials
		rec = do(s, http.MethodGet, "/v1/miners/webui-1", "")
		served := rec.Body.String()

		rec = do(s, http.MethodPut, "/v1/miners/webui-1", served)
		require.Equal(st, http.StatusOK, rec.Code)
		assert.NotContains(st, rec.Body.String(), "secret")

		stored, err := c.GetMiner("webui-1")
		require.NoError(st, err)
		assert.Equal(st, "device-secret", stored.Password)
		assert.Equal(st, "pool-secret", stored.Pool.Password)
	})

	t.Run("applies settings", func(st *testing.T) {
		a := mock_adapter.NewMockAdapter(ctrl)
		h := mock_adapter.NewMockHandle(ctrl)
		s := newServer(st, a)

		require.Equal(st, http.StatusCreated, do(s, http.MethodPost, "/v1/miners", bitaxeBody).Code)

		rec := do(s, http.MethodPost, "/v1/miners/bitaxe-1/settings", `{"tuning":{"fanSpeed":150}}`)
		assert.Equal(st, http.StatusBadRequest, rec.Code)

		a.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(h, nil)
		a.EXPECT().ApplySettings(gomock.Any(), h, gomock.Any()).
			Return(miner.Ack{Applied: []string{"fanSpeed"}}, nil)
		a.EXPECT().Close(h).Return(nil)

		rec = do(s, http.MethodPost, "/v1/miners/bitaxe-1/settings", `{"tuning":{"fanSpeed":60}}`)
		require.Equal(st, http.StatusOK, rec.Code)

		var ack miner.Ack
		require.NoError(st, json.NewDecoder(rec.Body).Decode(&ack))
		assert.Equal(st, "bitaxe-1", ack.DeviceID)
		assert.Equal(st, []string{"fanSpeed"}, ack.Applied)
	})

	t.Run("device failures are 502", func(st *testing.T) {
		a := mock_adapter.NewMockAdapter(ctrl)
		s := newServer(st, a)

		require.Equal(st, http.StatusCreated, do(s, http.MethodPost, "/v1/miners", bitaxeBody).Code)

		a.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(nil, &miner.ConnectError{
			Reason:  miner.ConnectRefused,
			Address: "192.168.1.50:80",
			Err:     assert.AnError,
		})

		rec := do(s, http.MethodPost, "/v1/miners/bitaxe-1/settings", `{"tuning":{"fanSpeed":60}}`)
		assert.Equal(st, http.StatusBadGateway, rec.Code)
		assert.Equal(st, api.ErrDeviceUnavailable, errorCode(st, rec))
	})
}

func TestScanRoutes(t *testing.T) {
	ctrl := gomock.NewController(t)

	defer ctrl.Finish()

	t.Run("streams scan results", func(st *testing.T) {
		a := mock_adapter.NewMockAdapter(ctrl)
		s := newServer(st, a)

		a.EXPECT().Probe(gomock.Any(), "10.0.0.5").
			Return(&adapter.Identity{Hostname: "bitaxe", Model: "BM1370"}, nil)

		srv := httptest.NewServer(s.Handler())
		defer srv.Close()

		res, err := http.Post(
			srv.URL+"/v1/scans",
			"application/json",
			strings.NewReader(`{"targets":["10.0.0.5"],"probeTimeout":"200ms"}`),
		)

		require.NoError(st, err)
		defer res.Body.Close()

		assert.Equal(st, http.StatusOK, res.StatusCode)
		assert.Equal(st, "text/event-stream", res.Header.Get("Content-Type"))
		assert.NotEmpty(st, res.Header.Get(api.ScanIDHeader))

		events := readEvents(st, res, 2)

		assert.Equal(st, "result", events[0].name)
		assert.Contains(st, events[0].data, `"status":"found"`)
		assert.Contains(st, events[0].data, `"address":"10.0.0.5"`)
		assert.Equal(st, "done", events[1].name)
		assert.Contains(st, events[1].data, `"found":1`)
	})

	t.Run("stops writing once the client is gone", func(st *testing.T) {
		svc := &scanService{
			results: []discovery.Result{
				{Address: "10.0.0.1", Status: discovery.StatusFound, Kind: miner.KindAxeOS},
				{Address: "10.0.0.2", Status: discovery.StatusUnresponsive},
				{Address: "10.0.0.3", Status: discovery.StatusUnresponsive},
			},
		}

		w := &brokenWriter{ResponseRecorder: httptest.NewRecorder()}
		req := httptest.NewRequest(http.MethodPost, "/v1/scans", strings.NewReader(`{"targets":["10.0.0.0/30"]}`))
		req.Header.Set("Content-Type", "application/json")

		api.New(svc, 8).Handler().ServeHTTP(w, req)

		assert.Equal(st, 1, w.writes)
		assert.Equal(st, 1, svc.stops)
		assert.Equal(st, "scan-1", w.Header().Get(api.ScanIDHeader))
	})

	t.Run("rejects bad scan requests", func(st *testing.T) {
		s := newServer(st, mock_adapter.NewMockAdapter(ctrl))

		rec := do(s, http.MethodPost, "/v1/scans", `{"targets":["not a host!"]}`)
		assert.Equal(st, http.StatusBadRequest, rec.Code)

		rec = do(s, http.MethodPost, "/v1/scans", `{"targets":["10.0.0.1"],"scanTimeout":"forever"}`)
		assert.Equal(st, http.StatusBadRequest, rec.Code)
	})
}

// scanService hands out a fixed set of scan results
type scanService struct {
	api.Service
	results []discovery.Result
	stops   int
}

func (s *scanService) Scan(context.Context, discovery.Request) (string, <-chan discovery.Result, error) {
	ch := make(chan discovery.Result, len(s.results))

	for _, r := range s.results {
		ch <- r
	}

	close(ch)

	return "scan-1", ch, nil
}

func (s *scanService) StopScan(string) error {
	s.stops++
	return exception.ErrScanNotFound
}

// brokenWriter accepts headers but fails every body write
type brokenWriter struct {
	*httptest.ResponseRecorder
	writes int
}

func (w *brokenWriter) Write([]byte) (int, error) {
	w.writes++
	return 0, errors.New("write: broken pipe")
}

// streamService serves live updates from a channel the test controls
type streamService struct {
	api.Service
	events chan event.Event
	gone   chan int
}

func (s *streamService) Subscribe(int) (int, <-chan event.Event) {
	return 7, s.events
}

func (s *streamService) Unsubscribe(id int) {
	s.gone <- id
}

func TestEventStream(t *testing.T) {
	t.Run("streams live updates until the client leaves", func(st *testing.T) {
		svc := &streamService{
			events: make(chan event.Event, 1),
			gone:   make(chan int, 1),
		}

		srv := httptest.NewServer(api.New(svc, 8).Handler())
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events", nil)
		require.NoError(st, err)

		res, err := http.DefaultClient.Do(req)
		require.NoError(st, err)
		defer res.Body.Close()

		svc.events <- event.Event{
			Type:      event.TelemetryEventType,
			DeviceID:  "bitaxe-1",
			Timestamp: time.Now(),
			Payload:   miner.Snapshot{DeviceID: "bitaxe-1", Hashrate: miner.Float(1e12)},
		}

		events := readEvents(st, res, 1)

		assert.Equal(st, "telemetry", events[0].name)

		var msg map[string]any
		require.NoError(st, json.Unmarshal([]byte(events[0].data), &msg))
		assert.Equal(st, "telemetry", msg["type"])
		assert.Equal(st, "bitaxe-1", msg["deviceId"])
		assert.NotNil(st, msg["timestamp"])
		assert.NotNil(st, msg["payload"])

		cancel()

		select {
		case id := <-svc.gone:
			assert.Equal(st, 7, id)
		case <-time.After(2 * time.Second):
			st.Fatal("subscriber was not removed")
		}
	})
}

package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chosenoffset/roll/pkg/roll"
	"github.com/chosenoffset/roll/pkg/roll/actions"
)

type envelope[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
	Error  string `json:"error"`
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(roll.NewEngine(), opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Stop()
		ts.Close()
	})
	return s, ts
}

func get[T any](t *testing.T, ts *httptest.Server, path string, params url.Values) (int, envelope[T]) {
	t.Helper()
	resp, err := http.Get(ts.URL + path + "?" + params.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()

	var body envelope[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func dial(t *testing.T, ts *httptest.Server) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
}

func TestHandleRoll(t *testing.T) {
	_, ts := newTestServer(t)

	params := url.Values{"expr": {"3d6"}, "count": {"2"}, "seed": {"7"}}
	status, body := get[RollResponse](t, ts, "/api/roll", params)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "3d6", body.Data.Expression)
	assert.Equal(t, int64(7), body.Data.Seed)
	require.Len(t, body.Data.Rolls, 2)
	for _, v := range body.Data.Rolls {
		assert.Len(t, v.Dice, 3)
		assert.GreaterOrEqual(t, v.Total, 3)
		assert.LessOrEqual(t, v.Total, 18)
	}
	assert.Equal(t, 2, strings.Count(body.Data.Text, "3d6: "))

	_, again := get[RollResponse](t, ts, "/api/roll", params)
	assert.Equal(t, body.Data.Rolls[0].Total, again.Data.Rolls[0].Total, "same seed, same rolls")
	assert.Equal(t, body.Data.Rolls[1].Total, again.Data.Rolls[1].Total)
}

func TestHandleRollDrawsSeed(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := get[RollResponse](t, ts, "/api/roll", url.Values{"expr": {"d20"}})
	require.Equal(t, http.StatusOK, status)
	assert.NotZero(t, body.Data.Seed)
	assert.Len(t, body.Data.Rolls, 1)
}

func TestHandleRollPartial(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := get[RollResponse](t, ts, "/api/roll", url.Values{"expr": {"2d6+1 x"}, "seed": {"1"}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2d6 + 1", body.Data.Expression)
	assert.Equal(t, "x", body.Data.Remaining)
}

func TestHandleRollErrors(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name   string
		params url.Values
		status int
	}{
		{"missing expr", url.Values{}, http.StatusBadRequest},
		{"unparseable", url.Values{"expr": {"hello"}}, http.StatusBadRequest},
		{"bad count", url.Values{"expr": {"1d6"}, "count": {"zero"}}, http.StatusBadRequest},
		{"count too large", url.Values{"expr": {"1d6"}, "count": {"1001"}}, http.StatusBadRequest},
		{"bad seed", url.Values{"expr": {"1d6"}, "seed": {"abc"}}, http.StatusBadRequest},
		{"never stops", url.Values{"expr": {"3d1!!"}}, http.StatusUnprocessableEntity},
		{"pool too large", url.Values{"expr": {"20000d6"}}, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := get[RollResponse](t, ts, "/api/roll", tt.params)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, "error", body.Status)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/roll?expr=1d6", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodGet, resp.Header.Get("Allow"))
}

func TestHandleChart(t *testing.T) {
	for _, workers := range []int{0, 3} {
		_, ts := newTestServer(t, WithChartDefaults(2000, workers))

		status, body := get[ChartResponse](t, ts, "/api/chart", url.Values{"expr": {"1d4"}, "seed": {"3"}})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, 2000, body.Data.Samples)
		require.Len(t, body.Data.Buckets, 4)
		assert.Equal(t, 1, body.Data.Buckets[0].Total)
		assert.Equal(t, 1.0, body.Data.Buckets[0].AtLeast)
		assert.InDelta(t, 2.5, body.Data.Mean, 0.2)
		assert.True(t, strings.HasPrefix(body.Data.Text, "  1. 100.0: *"))
	}
}

func TestHandleChartErrors(t *testing.T) {
	_, ts := newTestServer(t)

	status, _ := get[ChartResponse](t, ts, "/api/chart", url.Values{"expr": {"1d6"}, "samples": {"-4"}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = get[ChartResponse](t, ts, "/api/chart", url.Values{"expr": {"2d1**"}})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestHandleMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	get[RollResponse](t, ts, "/api/roll", url.Values{"expr": {"4d6^3"}, "count": {"3"}})
	get[RollResponse](t, ts, "/api/roll", url.Values{"expr": {"1d1!!"}})

	status, body := get[MetricsResponse](t, ts, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(3), body.Data.Rolls.Evaluations)
	assert.Equal(t, int64(1), body.Data.Rolls.Failures)
	assert.Equal(t, int64(12), body.Data.Rolls.DiceRolled)
	assert.Equal(t, int64(3), body.Data.Rolls.DiscardedDice)
	assert.Len(t, body.Data.Recent, 3)
	assert.Equal(t, int64(2), body.Data.HTTP.RequestCount)
	assert.Equal(t, int64(1), body.Data.HTTP.ErrorCount)
	assert.Positive(t, body.Data.Runtime.NumGoroutine)
}

func TestWebSocketBroadcast(t *testing.T) {
	s, ts := newTestServer(t)

	conn, _, err := dial(t, ts)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	get[RollResponse](t, ts, "/api/roll", url.Values{"expr": {"2d6"}, "seed": {"5"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string        `json:"type"`
		Data actions.Event `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, actions.RollEvent, msg.Data.Type)
	assert.Equal(t, "2d6", msg.Data.Expression)
	assert.Contains(t, msg.Data.Summary, " = ")

	require.Eventually(t, func() bool { return len(s.RecentEvents()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketMaxClients(t *testing.T) {
	s, ts := newTestServer(t, WithMaxClients(1))

	first, _, err := dial(t, ts)
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	_, resp, err := dial(t, ts)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocketOriginCheck(t *testing.T) {
	_, ts := newTestServer(t, WithOriginCheck(func(*http.Request) bool { return false }))

	_, resp, err := dial(t, ts)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStopClosesClients(t *testing.T) {
	s, ts := newTestServer(t)

	conn, _, err := dial(t, ts)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	require.Eventually(t, func() bool { return s.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestRecentEventsWraps(t *testing.T) {
	s, _ := newTestServer(t)

	for i := 0; i < eventBuffer+5; i++ {
		s.Publish(actions.NewEvent(actions.RollEvent, "1d6", "", i))
	}
	require.Eventually(t, func() bool {
		events := s.RecentEvents()
		return len(events) == eventBuffer && events[len(events)-1].Total == eventBuffer+4
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 5, s.RecentEvents()[0].Total)
}

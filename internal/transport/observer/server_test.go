package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilecensus.ai/internal/census"
	"tilecensus.ai/internal/protocol"
	"tilecensus.ai/internal/tiles"
)

type stubHistory struct {
	rep *census.Report
	err error
}

func (h stubHistory) LatestRun(ctx context.Context) (*census.Report, error) { return h.rep, h.err }

func world(groups ...string) census.StaticSource {
	var ts []tiles.Record
	for _, g := range groups {
		ts = append(ts, tiles.Record{Segments: []tiles.Segment{{GroupType: g, Edges: []int{0, 1, 2, 3, 4, 5}, SelfEdgeCount: 6}}})
	}
	return census.StaticSource{ID: "w1", Tick: 7, Tiles: ts}
}

func newTestServer(t *testing.T, src census.Source, hist History) (*Server, *census.Runner, *httptest.Server) {
	t.Helper()
	s := NewServer(hist, nil)
	r := census.NewRunner(src, nil, census.WithSinks(s))
	ts := httptest.NewServer(s.Handler(r))
	t.Cleanup(ts.Close)
	return s, r, ts
}

func TestTriggerHandler(t *testing.T) {
	_, _, ts := newTestServer(t, world(tiles.GroupForest, tiles.GroupForest, tiles.GroupWater), stubHistory{err: census.ErrNoReports})

	resp, err := http.Post(ts.URL+"/v1/census", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msg protocol.CensusReportMsg
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Equal(t, protocol.TypeCensusReport, msg.Type)
	assert.Equal(t, 3, msg.Tiles)
	assert.Equal(t, []protocol.EntryRow{{Code: "FFFFFF", Count: 2}, {Code: "RRRRRR", Count: 1}}, msg.Entries)

	resp2, err := http.Get(ts.URL + "/v1/census")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestTriggerHandler_Busy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	src := census.SourceFunc(func(ctx context.Context) (census.World, error) {
		close(entered)
		<-release
		return census.World{}, nil
	})
	_, _, ts := newTestServer(t, src, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, err := http.Post(ts.URL+"/v1/census", "application/json", nil)
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-entered

	resp, err := http.Post(ts.URL+"/v1/census", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var msg protocol.ErrorMsg
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Equal(t, protocol.ErrCensusBusy, msg.Code)

	close(release)
	wg.Wait()
}

func TestTriggerHandler_UnknownElement(t *testing.T) {
	_, _, ts := newTestServer(t, world("Mountain"), nil)
	resp, err := http.Post(ts.URL+"/v1/census", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var msg protocol.ErrorMsg
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Equal(t, protocol.ErrUnknownElement, msg.Code)
}

func TestLatestHandler(t *testing.T) {
	_, _, ts := newTestServer(t, world(tiles.GroupVillage), stubHistory{err: census.ErrNoReports})

	resp, err := http.Get(ts.URL + "/v1/census/latest")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/v1/census", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/v1/census/latest")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msg protocol.CensusReportMsg
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Equal(t, "VVVVVV", msg.Entries[0].Code)
}

func TestLatestHandler_FromHistory(t *testing.T) {
	hist := stubHistory{rep: &census.Report{ID: "old", Entries: []census.Entry{{Code: "GGGGGG", Count: 4}}, Tiles: 4}}
	_, _, ts := newTestServer(t, world(), hist)

	resp, err := http.Get(ts.URL + "/v1/census/latest")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msg protocol.CensusReportMsg
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Equal(t, "old", msg.RunID)
}

func TestWSHandler_StreamsReports(t *testing.T) {
	s, r, ts := newTestServer(t, world(tiles.GroupTrain), nil)

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version}))
	require.Eventually(t, func() bool { return s.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	rep, err := r.Run(context.Background())
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, protocol.ValidateReport(b))

	var msg protocol.CensusReportMsg
	require.NoError(t, json.Unmarshal(b, &msg))
	assert.Equal(t, rep.ID, msg.RunID)
	assert.Equal(t, "TTTTTT", msg.Entries[0].Code)
}

func TestWSHandler_RejectsBadHandshake(t *testing.T) {
	_, _, ts := newTestServer(t, world(), nil)
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"

	cases := []struct {
		name   string
		msg    string
		reason string
	}{
		{"wrong type", `{"type":"HELLO","protocol_version":"1.0"}`, "expected SUBSCRIBE"},
		{"wrong version", `{"type":"SUBSCRIBE","protocol_version":"0.9"}`, "expected SUBSCRIBE"},
		{"not json", `SUBSCRIBE`, "bad subscribe"},
		{"bad field", `{"type":"SUBSCRIBE","protocol_version":"1.0","send_latest":"yes"}`, "bad subscribe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn, _, err := websocket.DefaultDialer.Dial(u, nil)
			require.NoError(t, err)
			defer conn.Close()

			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tc.msg)))
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, _, err = conn.ReadMessage()
			var ce *websocket.CloseError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
			assert.Equal(t, tc.reason, ce.Text)
		})
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	assert.True(t, isLoopbackRemote("127.0.0.1:5555"))
	assert.True(t, isLoopbackRemote("[::1]:80"))
	assert.False(t, isLoopbackRemote("10.0.0.2:80"))
	assert.False(t, isLoopbackRemote("garbage"))
}

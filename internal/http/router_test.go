package http

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	mmrepo "github.com/yungbote/mindmesh-backend/internal/data/repos/mindmap"
	"github.com/yungbote/mindmesh-backend/internal/data/repos/testutil"
	"github.com/yungbote/mindmesh-backend/internal/embedding"
	httpH "github.com/yungbote/mindmesh-backend/internal/http/handlers"
	"github.com/yungbote/mindmesh-backend/internal/mindmap"
	"github.com/yungbote/mindmesh-backend/internal/observability"
	"github.com/yungbote/mindmesh-backend/internal/realtime"
)

// testProvider panics on the text "boom", stalls on "slow" and otherwise
// defers to the fallback.
type testProvider struct {
	*embedding.Fallback
	slow time.Duration
}

func (p testProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		switch t {
		case "boom":
			panic("embedding backend exploded")
		case "slow":
			time.Sleep(p.slow)
		}
	}
	return p.Fallback.Embed(ctx, texts)
}

type testEnv struct {
	srv *httptest.Server
	mgr *mindmap.SessionManager
}

func newTestEnv(t *testing.T) testEnv {
	return newTestEnvWith(t, 0, httpH.DefaultSocketConfig())
}

func newTestEnvWith(t *testing.T, slow time.Duration, socketCfg httpH.SocketConfig) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := testutil.Logger(t)
	store := mmrepo.NewGraphStore(testutil.DB(t), log)
	metrics := observability.NewMetrics()

	mgr, err := mindmap.NewSessionManager(
		mindmap.Config{Threshold: mindmap.DefaultThreshold, TopK: mindmap.DefaultTopK},
		mindmap.Deps{
			Log:      log,
			Store:    store,
			Provider: testProvider{Fallback: embedding.NewFallback(embedding.DefaultDims), slow: slow},
			Hub:      realtime.NewHub(log, metrics),
			Metrics:  metrics,
		},
	)
	require.NoError(t, err)

	r := NewRouter(RouterConfig{
		Log:            log,
		Metrics:        metrics,
		HealthHandler:  httpH.NewHealthHandler("mindmesh"),
		SessionHandler: httpH.NewSessionSocketHandler(log, mgr, socketCfg),
		GraphHandler:   httpH.NewGraphHandler(log, mgr),
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return testEnv{srv: srv, mgr: mgr}
}

func (e testEnv) dial(t *testing.T, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/session/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (e testEnv) waitSubscribers(t *testing.T, sessionID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(e.mgr.Hub().Subscribers(sessionID)) == n
	}, 2*time.Second, 10*time.Millisecond)
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readUpdate(t *testing.T, conn *websocket.Conn) realtime.GraphUpdate {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, realtime.TypeGraphUpdate, f.Type)
	var u realtime.GraphUpdate
	require.NoError(t, json.Unmarshal(f.Payload, &u))
	return u
}

func sendText(t *testing.T, conn *websocket.Conn, s string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(s)))
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := nethttp.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	code, body := get(t, env.srv.URL+"/")
	require.Equal(t, nethttp.StatusOK, code)
	require.JSONEq(t, `{"ok":true,"service":"mindmesh"}`, body)

	code, body = get(t, env.srv.URL+"/healthcheck")
	require.Equal(t, nethttp.StatusOK, code)
	require.Equal(t, "ok", body)
}

func TestSocketSingleUtterance(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "s1")

	sendText(t, conn, `{"type":"utterance","user":"a","text":"hello"}`)
	u := readUpdate(t, conn)
	require.Equal(t, "s1", u.Node.SessionID)
	require.Equal(t, "a", u.Node.User)
	require.Equal(t, "hello", u.Node.Text)
	require.Empty(t, u.Links)

	code, body := get(t, env.srv.URL+"/api/sessions/s1/graph")
	require.Equal(t, nethttp.StatusOK, code)
	var snap struct {
		Nodes []struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"nodes"`
		Links []json.RawMessage `json:"links"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &snap))
	require.Len(t, snap.Nodes, 1)
	require.Equal(t, u.Node.ID.String(), snap.Nodes[0].ID)
	require.NotNil(t, snap.Links)
}

func TestSocketIgnoresInvalidFrames(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "s5")

	sendText(t, conn, `not json`)
	sendText(t, conn, `{"type":"ping"}`)
	sendText(t, conn, `{"type":"utterance","text":"   "}`)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}))
	sendText(t, conn, `{"type":"utterance","text":"still here"}`)

	// The first frame back is the update for the valid utterance.
	u := readUpdate(t, conn)
	require.Equal(t, "still here", u.Node.Text)
	require.Equal(t, realtime.AnonymousUser, u.Node.User)
}

func TestSocketBroadcastsToAllSubscribers(t *testing.T) {
	env := newTestEnv(t)
	a := env.dial(t, "s6")
	b := env.dial(t, "s6")
	other := env.dial(t, "elsewhere")
	env.waitSubscribers(t, "s6", 2)
	env.waitSubscribers(t, "elsewhere", 1)

	sendText(t, a, `{"type":"utterance","user":"a","text":"shared"}`)
	ua := readUpdate(t, a)
	ub := readUpdate(t, b)
	require.Equal(t, ua.Node.ID, ub.Node.ID)

	// Closing one subscriber leaves the other receiving updates.
	require.NoError(t, a.Close())
	env.waitSubscribers(t, "s6", 1)
	sendText(t, b, `{"type":"utterance","user":"b","text":"shared"}`)
	u2 := readUpdate(t, b)
	require.Len(t, u2.Links, 1)
	require.Equal(t, ua.Node.ID, u2.Links[0].Source)

	// Other sessions see nothing.
	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := other.ReadMessage()
	require.Error(t, err)
}

func TestSocketClosesOnPanicAndOthersContinue(t *testing.T) {
	env := newTestEnv(t)
	bad := env.dial(t, "p1")
	good := env.dial(t, "p1")
	env.waitSubscribers(t, "p1", 2)

	sendText(t, bad, `{"type":"utterance","text":"boom"}`)
	require.NoError(t, bad.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := bad.ReadMessage()
	require.Error(t, err)
	require.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr), "unexpected error: %v", err)

	env.waitSubscribers(t, "p1", 1)
	sendText(t, good, `{"type":"utterance","text":"fine"}`)
	require.Equal(t, "fine", readUpdate(t, good).Node.Text)
}

func TestSocketOutlivesSlowUtterance(t *testing.T) {
	cfg := httpH.DefaultSocketConfig()
	cfg.PongWait = 300 * time.Millisecond
	env := newTestEnvWith(t, time.Second, cfg)
	conn := env.dial(t, "slow1")

	// Keep reading so pings are answered while the pipeline is busy.
	texts := make(chan string, 4)
	go func() {
		defer close(texts)
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			var u realtime.GraphUpdate
			if json.Unmarshal(f.Payload, &u) == nil {
				texts <- u.Node.Text
			}
		}
	}()

	sendText(t, conn, `{"type":"utterance","text":"slow"}`)
	time.Sleep(3 * cfg.PongWait)
	sendText(t, conn, `{"type":"utterance","text":"fast"}`)

	for _, want := range []string{"slow", "fast"} {
		select {
		case got, ok := <-texts:
			require.True(t, ok, "channel closed before %q arrived", want)
			require.Equal(t, want, got)
		case <-time.After(5 * time.Second):
			t.Fatalf("no update for %q", want)
		}
	}
	require.Len(t, env.mgr.Hub().Subscribers("slow1"), 1)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "m1")
	sendText(t, conn, `{"type":"utterance","text":"count me"}`)
	readUpdate(t, conn)

	code, body := get(t, env.srv.URL+"/metrics")
	require.Equal(t, nethttp.StatusOK, code)
	require.Contains(t, body, `mindmesh_utterances_total{result="accepted"} 1`)
	require.Contains(t, body, `mindmesh_subscribers 1`)
}

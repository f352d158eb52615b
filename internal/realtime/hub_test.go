package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/mindmesh-backend/internal/observability"
	"github.com/yungbote/mindmesh-backend/internal/platform/apierr"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

type fakeSub struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	onSend func()
}

func newFakeSub() *fakeSub { return &fakeSub{id: uuid.NewString()} }

func (f *fakeSub) ID() string { return f.id }

func (f *fakeSub) Send(_ context.Context, frame []byte) error {
	if f.onSend != nil {
		f.onSend()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSub) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func sampleUpdate() Envelope {
	n := NodeView{ID: uuid.New(), SessionID: "s", User: "a", Text: "hi"}
	return NewGraphUpdate(n, nil)
}

func TestHubSubscribeIdempotent(t *testing.T) {
	hub := NewHub(mustTestLogger(t), nil)
	a := newFakeSub()
	hub.Subscribe("s", a)
	hub.Subscribe("s", a)
	require.Len(t, hub.Subscribers("s"), 1)

	res := hub.Broadcast(context.Background(), "s", sampleUpdate())
	require.Equal(t, 1, res.Delivered)
	require.Len(t, a.received(), 1)

	hub.Unsubscribe("s", a)
	hub.Unsubscribe("s", a)
	hub.Unsubscribe("missing", a)
	require.Empty(t, hub.Subscribers("s"))
}

func TestHubBroadcastRemovesFailedSubscribers(t *testing.T) {
	hub := NewHub(mustTestLogger(t), observability.NewMetrics())
	good, bad := newFakeSub(), newFakeSub()
	bad.fail = true
	hub.Subscribe("s", good)
	hub.Subscribe("s", bad)

	res := hub.Broadcast(context.Background(), "s", sampleUpdate())
	require.Equal(t, BroadcastResult{Delivered: 1, Removed: 1}, res)
	require.Len(t, hub.Subscribers("s"), 1)

	res = hub.Broadcast(context.Background(), "s", sampleUpdate())
	require.Equal(t, 1, res.Delivered)
	require.Len(t, good.received(), 2)
}

func TestHubNormalizesSessionIDs(t *testing.T) {
	hub := NewHub(mustTestLogger(t), observability.NewMetrics())
	a := newFakeSub()
	hub.Subscribe(" s ", a)
	require.Len(t, hub.Subscribers("s"), 1)

	res := hub.Broadcast(context.Background(), "s\t", sampleUpdate())
	require.Equal(t, 1, res.Delivered)

	hub.Unsubscribe(" s", a)
	require.Empty(t, hub.Subscribers(" s "))
	require.Empty(t, hub.Subscribers("s"))
}

func TestHubBroadcastIsolatesSessions(t *testing.T) {
	hub := NewHub(mustTestLogger(t), nil)
	a, b := newFakeSub(), newFakeSub()
	hub.Subscribe("s1", a)
	hub.Subscribe("s2", b)

	hub.Broadcast(context.Background(), "s1", sampleUpdate())
	require.Len(t, a.received(), 1)
	require.Empty(t, b.received())
}

func TestHubBroadcastToleratesConcurrentUnsubscribe(t *testing.T) {
	hub := NewHub(mustTestLogger(t), nil)
	a, b := newFakeSub(), newFakeSub()
	// a leaves the session while the broadcast is iterating.
	a.onSend = func() { hub.Unsubscribe("s", b) }
	b.onSend = func() { hub.Unsubscribe("s", a) }
	hub.Subscribe("s", a)
	hub.Subscribe("s", b)

	done := make(chan BroadcastResult, 1)
	go func() { done <- hub.Broadcast(context.Background(), "s", sampleUpdate()) }()
	select {
	case res := <-done:
		require.Equal(t, 2, res.Delivered, "snapshot members are still attempted")
	case <-time.After(time.Second):
		t.Fatalf("broadcast deadlocked against unsubscribe")
	}
}

func TestGraphUpdateWireShape(t *testing.T) {
	src, dst := uuid.New(), uuid.New()
	msg := NewGraphUpdate(
		NodeView{ID: dst, SessionID: "room", User: "anon", Text: "the cat sat"},
		[]LinkView{{Source: src, Target: dst, Similarity: 0.91}},
	)
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var got struct {
		Type    string `json:"type"`
		Payload struct {
			Node  map[string]any   `json:"node"`
			Links []map[string]any `json:"links"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, "graph_update", got.Type)
	require.Equal(t, dst.String(), got.Payload.Node["id"])
	require.Equal(t, "room", got.Payload.Node["session_id"])
	require.Len(t, got.Payload.Links, 1)
	require.Equal(t, src.String(), got.Payload.Links[0]["source"])
	require.Equal(t, dst.String(), got.Payload.Links[0]["target"])

	empty, err := json.Marshal(NewGraphUpdate(NodeView{ID: dst}, nil))
	require.NoError(t, err)
	require.Contains(t, string(empty), `"links":[]`)
}

func TestErrorFrameHidesDetail(t *testing.T) {
	raw, err := json.Marshal(NewError(apierr.EmbedError))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"error","payload":{"kind":"embed_error","message":"internal error"}}`, string(raw))
}

func TestParseInbound(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Inbound
		kind apierr.Kind
	}{
		{"utterance", `{"type":"utterance","user":"a","text":"  hello  "}`, Utterance{User: "a", Text: "hello"}, ""},
		{"missing user", `{"type":"utterance","text":"hi"}`, Utterance{User: AnonymousUser, Text: "hi"}, ""},
		{"blank text", `{"type":"utterance","text":"   "}`, Utterance{User: AnonymousUser, Text: ""}, ""},
		{"missing text", `{"type":"utterance"}`, Utterance{User: AnonymousUser}, ""},
		{"unknown type", `{"type":"ping"}`, Unknown{Type: "ping"}, ""},
		{"no type", `{"text":"hi"}`, Unknown{}, ""},
		{"numeric type", `{"type":7}`, Unknown{}, ""},
		{"not json", `hello`, nil, apierr.BadFrame},
		{"array", `[1,2]`, nil, apierr.BadFrame},
		{"numeric text", `{"type":"utterance","text":5}`, nil, apierr.BadFrame},
	}
	for _, tc := range cases {
		got, err := ParseInbound([]byte(tc.raw))
		if tc.kind != "" {
			require.Equal(t, tc.kind, apierr.KindOf(err), tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.want, got, tc.name)
	}
}

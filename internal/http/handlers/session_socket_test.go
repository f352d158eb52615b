package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yungbote/mindmesh-backend/internal/platform/apierr"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

func TestOriginChecker(t *testing.T) {
	cases := []struct {
		origins []string
		origin  string
		want    bool
	}{
		{nil, "http://anything", true},
		{[]string{"*"}, "http://anything", true},
		{[]string{"http://app.local"}, "http://app.local", true},
		{[]string{"http://app.local"}, "http://evil.local", false},
		{[]string{"http://app.local"}, "", true},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/ws/session/s", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		if got := originChecker(tc.origins)(req); got != tc.want {
			t.Fatalf("origins=%v origin=%q: want=%v got=%v", tc.origins, tc.origin, tc.want, got)
		}
	}
}

func TestSocketSubscriberSend(t *testing.T) {
	s := newSocketSubscriber(nil, 1, time.Minute, logger.Nop())
	ctx := context.Background()

	if err := s.Send(ctx, []byte("one")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := s.Send(ctx, []byte("two")); apierr.KindOf(err) != apierr.DeliveryError {
		t.Fatalf("full queue: want delivery_error got %v", err)
	}

	// Overflow closes the subscriber.
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("overflowed subscriber was not closed")
	}
	if err := s.Send(ctx, []byte("three")); apierr.KindOf(err) != apierr.ChannelClosed {
		t.Fatalf("closed channel: want channel_closed got %v", err)
	}
}

func TestNewSessionSocketHandlerDefaults(t *testing.T) {
	h := NewSessionSocketHandler(logger.Nop(), nil, SocketConfig{})
	def := DefaultSocketConfig()
	if h.cfg.MaxMessageSize != def.MaxMessageSize || h.cfg.SendBuffer != def.SendBuffer {
		t.Fatalf("defaults not applied: %+v", h.cfg)
	}
	if h.cfg.PongWait != def.PongWait || h.cfg.InboundBuffer != def.InboundBuffer {
		t.Fatalf("defaults not applied: %+v", h.cfg)
	}
}

func TestSocketSubscriberShutdownFlushesQueue(t *testing.T) {
	subs := make(chan *socketSubscriber, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		subs <- newSocketSubscriber(conn, 8, time.Minute, logger.Nop())
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	var sub *socketSubscriber
	select {
	case sub = <-subs:
	case <-time.After(2 * time.Second):
		t.Fatalf("server never upgraded")
	}

	want := []string{"one", "two", "three"}
	for _, f := range want {
		if err := sub.Send(context.Background(), []byte(f)); err != nil {
			t.Fatalf("send %q: %v", f, err)
		}
	}
	go sub.writePump()
	sub.shutdown()

	if err := sub.Send(context.Background(), []byte("late")); apierr.KindOf(err) != apierr.ChannelClosed {
		t.Fatalf("send after shutdown: want channel_closed got %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	for _, w := range want {
		_, got, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("read %q: %v", w, err)
		}
		if string(got) != w {
			t.Fatalf("frame order: want %q got %q", w, got)
		}
	}
	_, _, err = client.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("want normal closure after queued frames, got %v", err)
	}
}

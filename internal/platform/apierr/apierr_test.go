package apierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfAndIs(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("process utterance: %w", New(EmbedError, "embed", base))

	if got := KindOf(err); got != EmbedError {
		t.Fatalf("KindOf: want=%s got=%s", EmbedError, got)
	}
	if !errors.Is(err, Of(EmbedError)) {
		t.Fatalf("errors.Is should match EmbedError sentinel")
	}
	if errors.Is(err, Of(PersistError)) {
		t.Fatalf("errors.Is should not match PersistError sentinel")
	}
	if !errors.Is(err, base) {
		t.Fatalf("wrapped cause should stay reachable")
	}
	if KindOf(base) != "" {
		t.Fatalf("plain errors have no kind")
	}
}

func TestErrorString(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{New(PersistError, "commit", errors.New("disk full")), "persist_error: commit: disk full"},
		{New(BadFrame, "", errors.New("eof")), "bad_frame: eof"},
		{New(Fatal, "handler", nil), "fatal: handler"},
		{Of(ChannelClosed), "channel_closed"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("Error(): want=%q got=%q", tc.want, got)
		}
	}
}

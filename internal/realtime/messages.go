package realtime

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/mindmesh-backend/internal/platform/apierr"
)

const (
	TypeUtterance   = "utterance"
	TypeGraphUpdate = "graph_update"
	TypeError       = "error"

	AnonymousUser = "anon"
)

// Inbound is a parsed client frame. Only Utterance carries work for the engine.
type Inbound interface {
	inboundType() string
}

type Utterance struct {
	User string
	Text string
}

// Unknown is any well-formed frame whose type the server does not handle.
type Unknown struct {
	Type string
}

func (Utterance) inboundType() string { return TypeUtterance }
func (u Unknown) inboundType() string { return u.Type }

type inboundFrame struct {
	Type json.RawMessage `json:"type"`
	User *string         `json:"user"`
	Text *string         `json:"text"`
}

// ParseInbound decodes one client frame. Non-object JSON or wrongly typed user/text
// fields are BadFrame errors. Text is trimmed; an empty result is left to the caller.
func ParseInbound(raw []byte) (Inbound, error) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, apierr.New(apierr.BadFrame, "decode frame", err)
	}
	var typ string
	if len(f.Type) > 0 {
		// A non-string type is simply not one we handle.
		_ = json.Unmarshal(f.Type, &typ)
	}
	if typ != TypeUtterance {
		return Unknown{Type: typ}, nil
	}
	u := Utterance{User: AnonymousUser}
	if f.User != nil {
		u.User = *f.User
	}
	if f.Text != nil {
		u.Text = strings.TrimSpace(*f.Text)
	}
	return u, nil
}

type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type NodeView struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`
	User      string    `json:"user"`
	Text      string    `json:"text"`
}

type LinkView struct {
	Source     uuid.UUID `json:"source"`
	Target     uuid.UUID `json:"target"`
	Similarity float64   `json:"similarity"`
}

type GraphUpdate struct {
	Node  NodeView   `json:"node"`
	Links []LinkView `json:"links"`
}

type ErrorPayload struct {
	Kind    apierr.Kind `json:"kind"`
	Message string      `json:"message"`
}

func NewGraphUpdate(node NodeView, links []LinkView) Envelope {
	if links == nil {
		links = []LinkView{}
	}
	return Envelope{Type: TypeGraphUpdate, Payload: GraphUpdate{Node: node, Links: links}}
}

// NewError builds the frame sent to an originating client whose utterance failed.
// Internal detail is never exposed.
func NewError(kind apierr.Kind) Envelope {
	return Envelope{Type: TypeError, Payload: ErrorPayload{Kind: kind, Message: "internal error"}}
}

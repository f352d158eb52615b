package mindmap

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	mmrepo "github.com/yungbote/mindmesh-backend/internal/data/repos/mindmap"
	domain "github.com/yungbote/mindmesh-backend/internal/domain/mindmap"
	"github.com/yungbote/mindmesh-backend/internal/embedding"
	"github.com/yungbote/mindmesh-backend/internal/observability"
	"github.com/yungbote/mindmesh-backend/internal/platform/apierr"
	"github.com/yungbote/mindmesh-backend/internal/platform/ctxutil"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
	"github.com/yungbote/mindmesh-backend/internal/realtime"
	"github.com/yungbote/mindmesh-backend/internal/similarity"
)

const (
	DefaultThreshold = 0.87
	DefaultTopK      = 3
)

// ReembedMode controls whether prior cached texts are embedded again on every utterance.
type ReembedMode string

const (
	ReembedAlways ReembedMode = "always"
	ReembedNever  ReembedMode = "never"
	// ReembedAuto re-embeds only when the provider is not deterministic.
	ReembedAuto ReembedMode = "auto"
)

type Config struct {
	Threshold float64
	TopK      int
	Reembed   ReembedMode
}

// Store is the persistence the engine needs.
type Store interface {
	Begin(ctx context.Context) (mmrepo.UtteranceTx, error)
	ListNodes(ctx context.Context, sessionID string) ([]*domain.Node, error)
	ListLinks(ctx context.Context, sessionID string) ([]*domain.Link, error)
}

// Projector receives every committed utterance. It must not block.
type Projector interface {
	Project(node *domain.Node, links []*domain.Link)
}

// SessionManager owns the subscription registry, the per-session caches and the
// per-session lock table. Every accepted utterance for a session runs under that
// session's lock, so broadcasts leave in commit order.
type SessionManager struct {
	cfg       Config
	log       *logger.Logger
	store     Store
	provider  embedding.Provider
	hub       *realtime.Hub
	metrics   *observability.Metrics
	projector Projector
	tracer    trace.Tracer

	cache *Cache
	locks *lockTable
}

type Deps struct {
	Log      *logger.Logger
	Store    Store
	Provider embedding.Provider
	Hub      *realtime.Hub
	Metrics  *observability.Metrics
	// Projector is optional.
	Projector Projector
}

func NewSessionManager(cfg Config, deps Deps) (*SessionManager, error) {
	if deps.Log == nil || deps.Store == nil || deps.Provider == nil || deps.Hub == nil {
		return nil, errors.New("session manager: log, store, provider and hub are required")
	}
	if math.IsNaN(cfg.Threshold) {
		return nil, errors.New("session manager: threshold must be a number")
	}
	if cfg.TopK < 0 {
		return nil, fmt.Errorf("session manager: top_k must be >= 0, got %d", cfg.TopK)
	}
	switch cfg.Reembed {
	case "":
		cfg.Reembed = ReembedAuto
	case ReembedAlways, ReembedNever, ReembedAuto:
	default:
		return nil, fmt.Errorf("session manager: unknown reembed mode %q", cfg.Reembed)
	}
	return &SessionManager{
		cfg:       cfg,
		log:       deps.Log.With("component", "SessionManager"),
		store:     deps.Store,
		provider:  deps.Provider,
		hub:       deps.Hub,
		metrics:   deps.Metrics,
		projector: deps.Projector,
		tracer:    otel.Tracer("github.com/yungbote/mindmesh-backend/internal/mindmap"),
		cache:     NewCache(),
		locks:     newLockTable(),
	}, nil
}

func (m *SessionManager) Config() Config { return m.cfg }

func (m *SessionManager) Hub() *realtime.Hub { return m.hub }

// Attach subscribes sub to the session and makes sure its cache exists. It
// waits for the session lock, so an utterance already committed is never
// delivered to a subscriber that joined after the commit.
func (m *SessionManager) Attach(sessionID string, sub realtime.Subscriber) {
	unlock := m.locks.lock(sessionID)
	defer unlock()
	m.hub.Subscribe(sessionID, sub)
	if _, created := m.cache.GetOrCreate(sessionID); created {
		m.metrics.SetSessions(m.cache.Len())
	}
}

func (m *SessionManager) Detach(sessionID string, sub realtime.Subscriber) {
	m.hub.Unsubscribe(sessionID, sub)
}

// HandleFrame runs one raw client frame through the pipeline. BadFrame, EmptyText
// and unknown types are dropped silently. On EmbedError or PersistError the origin
// receives an error frame. The returned error is informational except for Fatal,
// which means the channel should be closed.
func (m *SessionManager) HandleFrame(ctx context.Context, sessionID string, origin realtime.Subscriber, raw []byte) error {
	msg, err := realtime.ParseInbound(raw)
	if err != nil {
		m.metrics.IncUtterance(observability.ResultBadFrame)
		return err
	}
	utt, ok := msg.(realtime.Utterance)
	if !ok {
		m.metrics.IncUtterance(observability.ResultIgnored)
		return nil
	}
	if utt.Text == "" {
		m.metrics.IncUtterance(observability.ResultIgnored)
		return apierr.New(apierr.EmptyText, "validate", nil)
	}

	_, err = m.ProcessUtterance(ctx, sessionID, utt.User, utt.Text)
	switch kind := apierr.KindOf(err); kind {
	case "":
		return nil
	case apierr.EmbedError, apierr.PersistError:
		if origin != nil {
			if sendErr := realtime.SendTo(ctx, origin, realtime.NewError(kind)); sendErr != nil {
				m.log.Debug("Error frame not delivered", "session_id", sessionID, "error", sendErr)
			}
		}
	}
	return err
}

// ProcessUtterance embeds, links, persists and broadcasts one utterance. It is
// not cancelled by the caller going away; only the embedding backend timeout
// bounds it.
func (m *SessionManager) ProcessUtterance(ctx context.Context, sessionID, user, text string) (*realtime.GraphUpdate, error) {
	ctx = context.WithoutCancel(ctx)
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apierr.New(apierr.EmptyText, "validate", nil)
	}
	if user == "" {
		user = realtime.AnonymousUser
	}
	log := m.log.With(append([]interface{}{"session_id", sessionID}, ctxutil.LogFields(ctx)...)...)

	ctx, span := m.tracer.Start(ctx, "mindmap.process_utterance", trace.WithAttributes(
		attribute.Int("mindmap.text_len", len(text)),
	))
	defer span.End()

	update, err := m.process(ctx, log, sessionID, user, text)
	result := observability.ResultAccepted
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apierr.KindOf(err)))
		switch apierr.KindOf(err) {
		case apierr.EmbedError:
			result = observability.ResultEmbedError
			log.Warn("Utterance aborted: embedding failed", "error", err)
		case apierr.PersistError:
			result = observability.ResultPersistError
			log.Error("Utterance aborted: persistence failed", "error", err)
		default:
			result = observability.ResultFatal
			log.ErrorStack("Utterance aborted: invariant violated", "error", err)
		}
	}
	m.metrics.IncUtterance(result)
	return update, err
}

func (m *SessionManager) process(ctx context.Context, log *logger.Logger, sessionID, user, text string) (*realtime.GraphUpdate, error) {
	unlock := m.locks.lock(sessionID)
	defer unlock()

	sc, created := m.cache.GetOrCreate(sessionID)
	if created {
		m.metrics.SetSessions(m.cache.Len())
	}
	if !sc.hydrated {
		if err := m.hydrate(ctx, sessionID, sc); err != nil {
			return nil, apierr.New(apierr.PersistError, "hydrate cache", err)
		}
	}

	// Embed stale priors and the new text in one batch.
	reembed := m.reembedAll()
	prior := sc.Nodes()
	var idx []int
	var texts []string
	if reembed {
		texts = sc.Texts()
	} else {
		for i, c := range prior {
			if c.Vec == nil {
				idx = append(idx, i)
				texts = append(texts, c.Text)
			}
		}
	}
	texts = append(texts, text)

	vecs, err := m.embed(ctx, texts)
	if err != nil {
		return nil, apierr.New(apierr.EmbedError, "embed", err)
	}
	if len(vecs) != len(texts) {
		return nil, apierr.New(apierr.EmbedError, "embed", fmt.Errorf("got %d vectors for %d texts", len(vecs), len(texts)))
	}
	newVec := vecs[len(vecs)-1]
	if reembed {
		err = sc.RefreshVectors(vecs[:len(vecs)-1])
	} else {
		err = sc.refreshAt(idx, vecs[:len(vecs)-1])
	}
	if err != nil {
		return nil, apierr.New(apierr.Fatal, "refresh vectors", err)
	}

	candidates := make([][]float32, len(prior))
	for i, c := range prior {
		candidates[i] = c.Vec
	}
	ranked, err := similarity.Rank(newVec, candidates)
	if err != nil {
		return nil, apierr.New(apierr.Fatal, "rank", err)
	}
	selected := similarity.Select(ranked, m.cfg.Threshold, m.cfg.TopK)

	node, links, err := m.persist(ctx, sessionID, user, text, prior, selected)
	if err != nil {
		return nil, apierr.New(apierr.PersistError, "persist", err)
	}

	// Appending after commit keeps the cache untouched when persistence fails.
	sc.Append(CachedNode{ID: node.ID, Text: text, User: user, Vec: newVec})
	m.metrics.AddLinks(len(links))

	views := make([]realtime.LinkView, len(links))
	for i, l := range links {
		views[i] = realtime.LinkView{Source: l.SourceID, Target: l.TargetID, Similarity: l.Similarity}
	}
	msg := realtime.NewGraphUpdate(realtime.NodeView{
		ID:        node.ID,
		SessionID: sessionID,
		User:      user,
		Text:      text,
	}, views)

	_, bspan := m.tracer.Start(ctx, "mindmap.broadcast")
	res := m.hub.Broadcast(ctx, sessionID, msg)
	bspan.SetAttributes(attribute.Int("mindmap.delivered", res.Delivered), attribute.Int("mindmap.removed", res.Removed))
	bspan.End()

	if m.projector != nil {
		m.projector.Project(node, links)
	}

	log.Debug("Utterance accepted", "node_id", node.ID, "links", len(links), "delivered", res.Delivered)
	update := msg.Payload.(realtime.GraphUpdate)
	return &update, nil
}

func (m *SessionManager) reembedAll() bool {
	switch m.cfg.Reembed {
	case ReembedAlways:
		return true
	case ReembedNever:
		return false
	default:
		return !m.provider.Deterministic()
	}
}

func (m *SessionManager) hydrate(ctx context.Context, sessionID string, sc *SessionCache) error {
	rows, err := m.store.ListNodes(ctx, sessionID)
	if err != nil {
		return err
	}
	nodes := make([]CachedNode, 0, len(rows))
	for _, r := range rows {
		nodes = append(nodes, CachedNode{ID: r.ID, Text: r.Text, User: r.User})
	}
	sc.nodes = nodes
	sc.hydrated = true
	if len(nodes) > 0 {
		m.log.Info("Session cache hydrated", "session_id", sessionID, "nodes", len(nodes))
	}
	return nil
}

func (m *SessionManager) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := m.tracer.Start(ctx, "mindmap.embed", trace.WithAttributes(
		attribute.Int("embedding.batch", len(texts)),
		attribute.String("embedding.provider", m.provider.Name()),
	))
	defer span.End()

	start := time.Now()
	vecs, err := m.provider.Embed(ctx, texts)
	m.metrics.ObserveEmbed(m.provider.Name(), err, time.Since(start))
	if err != nil {
		span.RecordError(err)
	}
	return vecs, err
}

// persist writes the node and its links in one transaction.
func (m *SessionManager) persist(ctx context.Context, sessionID, user, text string, prior []CachedNode, selected []similarity.Scored) (*domain.Node, []*domain.Link, error) {
	ctx, span := m.tracer.Start(ctx, "mindmap.persist", trace.WithAttributes(
		attribute.Int("mindmap.links", len(selected)),
	))
	defer span.End()

	tx, err := m.store.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	node := &domain.Node{SessionID: sessionID, User: user, Text: text}
	nodeID, err := tx.InsertNode(node)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	links := make([]*domain.Link, 0, len(selected))
	for _, s := range selected {
		l := &domain.Link{
			SessionID:  sessionID,
			SourceID:   prior[s.Index].ID,
			TargetID:   nodeID,
			Similarity: s.Score,
		}
		if err := tx.InsertLink(l); err != nil {
			span.RecordError(err)
			return nil, nil, err
		}
		links = append(links, l)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	if node.ID == uuid.Nil {
		node.ID = nodeID
	}
	return node, links, nil
}

type GraphSnapshot struct {
	Nodes []*domain.Node `json:"nodes"`
	Links []*domain.Link `json:"links"`
}

// Snapshot reads the committed graph for a session from the store.
func (m *SessionManager) Snapshot(ctx context.Context, sessionID string) (*GraphSnapshot, error) {
	nodes, err := m.store.ListNodes(ctx, sessionID)
	if err != nil {
		return nil, apierr.New(apierr.PersistError, "list nodes", err)
	}
	links, err := m.store.ListLinks(ctx, sessionID)
	if err != nil {
		return nil, apierr.New(apierr.PersistError, "list links", err)
	}
	if nodes == nil {
		nodes = []*domain.Node{}
	}
	if links == nil {
		links = []*domain.Link{}
	}
	return &GraphSnapshot{Nodes: nodes, Links: links}, nil
}

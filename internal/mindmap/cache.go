package mindmap

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// CachedNode shadows a persisted node with its embedding. Vec is nil until the
// node has been embedded by the current provider.
type CachedNode struct {
	ID   uuid.UUID
	Text string
	User string
	Vec  []float32
}

// SessionCache is the ordered node list for one session. It must only be
// touched while holding that session's lock.
type SessionCache struct {
	nodes    []CachedNode
	hydrated bool
}

func (s *SessionCache) Len() int { return len(s.nodes) }

func (s *SessionCache) Nodes() []CachedNode { return s.nodes }

func (s *SessionCache) Texts() []string {
	out := make([]string, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.Text
	}
	return out
}

func (s *SessionCache) Append(n CachedNode) {
	s.nodes = append(s.nodes, n)
}

// RefreshVectors overwrites the vectors of the first len(vecs) entries.
func (s *SessionCache) RefreshVectors(vecs [][]float32) error {
	if len(vecs) > len(s.nodes) {
		return fmt.Errorf("refresh: %d vectors for %d cached nodes", len(vecs), len(s.nodes))
	}
	for i, v := range vecs {
		s.nodes[i].Vec = v
	}
	return nil
}

// refreshAt overwrites the vectors at the given positions.
func (s *SessionCache) refreshAt(idx []int, vecs [][]float32) error {
	if len(idx) != len(vecs) {
		return fmt.Errorf("refresh: %d positions for %d vectors", len(idx), len(vecs))
	}
	for j, i := range idx {
		if i < 0 || i >= len(s.nodes) {
			return fmt.Errorf("refresh: position %d out of range", i)
		}
		s.nodes[i].Vec = vecs[j]
	}
	return nil
}

// Cache maps session ids to their SessionCache. Entries live for the process lifetime.
type Cache struct {
	mu       sync.Mutex
	sessions map[string]*SessionCache
}

func NewCache() *Cache {
	return &Cache{sessions: make(map[string]*SessionCache)}
}

// GetOrCreate returns the session's cache and whether it was just created.
func (c *Cache) GetOrCreate(sessionID string) (*SessionCache, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sc, ok := c.sessions[sessionID]; ok {
		return sc, false
	}
	sc := &SessionCache{}
	c.sessions[sessionID] = sc
	return sc, true
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// lockTable hands out one mutex per session id.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) lock(sessionID string) func() {
	t.mu.Lock()
	l, ok := t.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[sessionID] = l
	}
	t.mu.Unlock()
	l.Lock()
	return l.Unlock
}

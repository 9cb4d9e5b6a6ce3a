// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"sync"
	"time"

	"github.com/jeranaias/relay-tui/internal/flush"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when no session exists for the given ID.
	ErrNotFound = errors.New("session: not found")
)

// =============================================================================
// REGISTRY
// =============================================================================

// entry pairs a session with its bookkeeping.
type entry struct {
	session      *flush.Session
	createdAt    time.Time
	lastActivity time.Time
}

// Registry owns every active stream session, keyed by session ID. All
// methods are safe for concurrent use; the registry lock covers only the
// map, never a session's own processing.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	// Shared, immutable defaults applied to new sessions.
	catalog   *flush.Catalog
	threshold int
	discard   bool
}

// NewRegistry creates a registry whose sessions share the given catalog and
// flush options. A nil catalog means flush.DefaultCatalog.
func NewRegistry(catalog *flush.Catalog, threshold int, discardOnCancel bool) *Registry {
	return &Registry{
		entries:   make(map[string]*entry),
		catalog:   catalog,
		threshold: threshold,
		discard:   discardOnCancel,
	}
}

// Open creates a new session wired to emit and registers it. The returned
// session is ready to receive fragments.
func (r *Registry) Open(emit flush.Emitter) *flush.Session {
	s := flush.NewSession(flush.Options{
		Threshold:       r.threshold,
		DiscardOnCancel: r.discard,
		Catalog:         r.catalog,
	}, emit)

	now := time.Now()
	r.mu.Lock()
	r.entries[s.ID()] = &entry{session: s, createdAt: now, lastActivity: now}
	r.mu.Unlock()
	return s
}

// Get returns the session for id, or ErrNotFound.
func (r *Registry) Get(id string) (*flush.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.session, nil
}

// Touch records activity on a session, used by the idle sweep.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.lastActivity = time.Now()
	}
}

// Remove drops a session from the registry. The session itself is left as
// is; callers close it before removal.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CloseAll aborts every open session and empties the registry. Used on
// application shutdown so buffered partial content is not silently lost.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*flush.Session, 0, len(r.entries))
	for _, e := range r.entries {
		sessions = append(sessions, e.session)
	}
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	// Abort outside the registry lock; each session serializes itself.
	for _, s := range sessions {
		if !s.Closed() {
			_ = s.Abort()
		}
	}
}

// SweepIdle aborts and removes sessions with no activity for at least
// maxIdle. Returns the IDs that were swept.
func (r *Registry) SweepIdle(maxIdle time.Duration) []string {
	now := time.Now()

	r.mu.Lock()
	var victims []*flush.Session
	var ids []string
	for id, e := range r.entries {
		if now.Sub(e.lastActivity) >= maxIdle {
			victims = append(victims, e.session)
			ids = append(ids, id)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, s := range victims {
		if !s.Closed() {
			_ = s.Abort()
		}
	}
	return ids
}

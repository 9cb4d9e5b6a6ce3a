// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package flush

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrClosed is returned when a fragment is pushed to a closed session or a
// session is closed twice. It signals a lifecycle bug in the caller's
// stream management, so it is surfaced rather than ignored.
var ErrClosed = errors.New("flush: session is closed")

// =============================================================================
// SEGMENTS AND EMITTERS
// =============================================================================

// Segment is one flushed piece of output: the released text and the reason
// it was released. Segments for a session are emitted in the same order
// fragments were consumed; their concatenation equals the concatenation of
// all pushed fragments.
type Segment struct {
	Text   string
	Reason Reason
}

// Emitter receives flushed segments downstream. It is called synchronously
// from Push/Close/Abort while the session lock is held, so implementations
// must not call back into the session.
type Emitter func(Segment)

// =============================================================================
// STREAM SESSION
// =============================================================================

// Options configures a session.
type Options struct {
	// Threshold is the length safety valve in runes (0 = default).
	Threshold int

	// DiscardOnCancel drops buffered content on Abort instead of emitting
	// a terminal segment.
	DiscardOnCancel bool

	// Catalog is the detection rule set (nil = DefaultCatalog).
	Catalog *Catalog
}

// Session orchestrates one logical stream: it receives fragments in order,
// drives the accumulator and policy, emits flushed segments, and performs
// the final forced flush at stream end.
//
// A session is either open or closed. Every operation after close returns
// ErrClosed. All methods are safe for concurrent use; access to the buffer
// is serialized by the session's own lock.
type Session struct {
	mu sync.Mutex

	id        string
	buf       Accumulator
	policy    *Policy
	emit      Emitter
	fragments int
	closed    bool
	discard   bool
}

// NewSession creates an open session that hands flushed segments to emit.
func NewSession(opts Options, emit Emitter) *Session {
	if emit == nil {
		emit = func(Segment) {}
	}
	return &Session{
		id:      uuid.New().String(),
		policy:  NewPolicy(opts.Threshold, NewDetector(opts.Catalog)),
		emit:    emit,
		discard: opts.DiscardOnCancel,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Fragments returns how many fragments the session has consumed.
func (s *Session) Fragments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fragments
}

// Pending returns the current buffered text without mutating it.
func (s *Session) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Contents()
}

// Closed reports whether the session has terminated.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Push appends one fragment and runs a flush decision over the updated
// buffer. If the decision signals flush, the whole pending buffer is taken
// and emitted with the decision's reason. Returns ErrClosed after Close or
// Abort.
func (s *Session) Push(fragment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.buf.Append(fragment)
	s.fragments++

	d := s.policy.Decide(s.buf.Contents(), false)
	if d.Flush {
		s.emit(Segment{Text: s.buf.Take(), Reason: d.Reason})
	}
	return nil
}

// Close marks the stream terminal and performs exactly one final flush.
// The terminal segment is emitted even when the buffer is empty, so the
// consumer reliably observes session closure. Returns ErrClosed if the
// session was already closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.closed = true

	d := s.policy.Decide(s.buf.Contents(), true)
	s.emit(Segment{Text: s.buf.Take(), Reason: d.Reason})
	return nil
}

// Abort cancels the stream before natural completion. By default buffered
// partial content is still emitted via the terminal flush so nothing is
// silently dropped; with DiscardOnCancel set, the buffer is discarded and
// the session closes without any emission.
func (s *Session) Abort() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.discard {
		s.closed = true
		s.buf.Take()
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.Close()
}

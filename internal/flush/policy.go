// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package flush

import (
	"strings"
	"unicode/utf8"
)

// =============================================================================
// FLUSH REASONS
// =============================================================================

// Reason tags every flush decision so downstream consumers (and stored
// transcripts) can tell why a segment was released.
type Reason int

const (
	// ReasonNoFlush means hold: keep accumulating.
	ReasonNoFlush Reason = iota

	// ReasonStreamEnd is the mandatory terminal flush.
	ReasonStreamEnd

	// ReasonParagraphBreak is the baseline prose trigger: a double
	// line-break in the buffer.
	ReasonParagraphBreak

	// ReasonCodeStatementEnd is a code flush at a statement terminator.
	ReasonCodeStatementEnd

	// ReasonCodeAssignment is a code flush after a completed assignment.
	ReasonCodeAssignment

	// ReasonCodeLineBreak is a code flush at a line break.
	ReasonCodeLineBreak

	// ReasonLengthThreshold is the safety valve for unbroken prose with no
	// structural signal.
	ReasonLengthThreshold
)

// String returns the reason tag used in transcripts and tests.
func (r Reason) String() string {
	switch r {
	case ReasonStreamEnd:
		return "STREAM_END"
	case ReasonParagraphBreak:
		return "PARAGRAPH_BREAK"
	case ReasonCodeStatementEnd:
		return "CODE_STATEMENT_END"
	case ReasonCodeAssignment:
		return "CODE_ASSIGNMENT"
	case ReasonCodeLineBreak:
		return "CODE_LINE_BREAK"
	case ReasonLengthThreshold:
		return "LENGTH_THRESHOLD"
	default:
		return "NO_FLUSH"
	}
}

// Decision is a fresh value produced per fragment; it is never persisted by
// the engine itself.
type Decision struct {
	Flush  bool
	Reason Reason
}

// =============================================================================
// FLUSH POLICY ENGINE
// =============================================================================

// DefaultLengthThreshold is the fallback buffer size, counted in runes.
// Counting runes rather than bytes keeps the threshold stable for
// multi-byte text; fragments are rune-aligned by the time they reach the
// engine (the transport layer holds back partial UTF-8 sequences).
const DefaultLengthThreshold = 50

// Policy combines buffer length, structural markers, and detector output
// into a single flush/no-flush decision. A Policy is immutable after
// construction and safe for concurrent use.
type Policy struct {
	threshold int
	detector  *Detector
}

// NewPolicy creates a policy with the given length threshold (runes) and
// detector. Threshold values below 1 fall back to DefaultLengthThreshold;
// a nil detector gets the default catalog.
func NewPolicy(threshold int, detector *Detector) *Policy {
	if threshold < 1 {
		threshold = DefaultLengthThreshold
	}
	if detector == nil {
		detector = NewDetector(nil)
	}
	return &Policy{threshold: threshold, detector: detector}
}

// Threshold returns the configured length threshold in runes.
func (p *Policy) Threshold() int {
	return p.threshold
}

// Decide evaluates the flush rules in order; the first match wins:
//
//  1. Terminal streams flush unconditionally (even an empty buffer), so the
//     session always closes with exactly one STREAM_END emission.
//  2. A paragraph break flushes — the cheapest, most universal prose signal.
//  3. Code-like buffers flush at their strongest available boundary.
//  4. Past the length threshold, flush anyway as a safety valve against
//     unbounded growth.
//  5. Otherwise hold.
//
// Code boundaries outrank the threshold deliberately: the raw threshold is
// what used to split declarations mid-statement, so it is demoted to a
// fallback reached only when no structural signal exists.
func (p *Policy) Decide(buffer string, terminal bool) Decision {
	if terminal {
		return Decision{Flush: true, Reason: ReasonStreamEnd}
	}

	if hasParagraphBreak(buffer) {
		return Decision{Flush: true, Reason: ReasonParagraphBreak}
	}

	if c := p.detector.Classify(buffer); c.IsCode {
		switch c.Boundary {
		case BoundaryStatement:
			return Decision{Flush: true, Reason: ReasonCodeStatementEnd}
		case BoundaryAssignment:
			return Decision{Flush: true, Reason: ReasonCodeAssignment}
		case BoundaryLine:
			return Decision{Flush: true, Reason: ReasonCodeLineBreak}
		}
		// Code-like with no boundary yet: fall through to the length
		// safety valve like any other unstructured buffer.
	}

	if utf8.RuneCountInString(buffer) > p.threshold {
		return Decision{Flush: true, Reason: ReasonLengthThreshold}
	}

	return Decision{Flush: false, Reason: ReasonNoFlush}
}

// hasParagraphBreak reports two consecutive line-break sequences, in either
// Unix or Windows form.
func hasParagraphBreak(buffer string) bool {
	return strings.Contains(buffer, "\n\n") || strings.Contains(buffer, "\r\n\r\n")
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package flush

import (
	"strings"
	"unicode/utf8"
)

// =============================================================================
// BUFFER ACCUMULATOR
// =============================================================================

// Accumulator owns the pending-text state for one stream session. It
// appends fragments in order, exposes the current contents, and resets on
// Take. Characters are never lost, reordered, or duplicated.
//
// Accumulator is not safe for concurrent use on its own; the owning
// Session serializes access.
type Accumulator struct {
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	pending strings.Builder
}

// Append adds fragment text to the end of the pending buffer.
func (a *Accumulator) Append(fragment string) {
	a.pending.WriteString(fragment)
}

// Contents returns the current buffer without mutating it.
func (a *Accumulator) Contents() string {
	return a.pending.String()
}

// Len returns the buffer length in runes, matching the policy threshold
// unit.
func (a *Accumulator) Len() int {
	return utf8.RuneCountInString(a.pending.String())
}

// Take returns the current contents and resets the buffer to empty. It is
// the only mutation paired with emission and must be called exactly once
// per flush.
func (a *Accumulator) Take() string {
	contents := a.pending.String()
	a.pending.Reset()
	return contents
}

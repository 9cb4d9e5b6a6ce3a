// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package flush implements the streaming flush-decision engine.
package flush

import (
	"errors"
	"regexp"
)

// =============================================================================
// BOUNDARY CLASSES
// =============================================================================

// BoundaryClass categorizes the textual positions considered safe to flush
// at for code-like content. The values are ordered by strength: a statement
// end yields the largest self-contained chunk, a bare line break the
// smallest. The Detector degrades from a rule's class toward weaker classes
// when the buffer lacks the evidence for the stronger one.
type BoundaryClass int

const (
	// BoundaryNone means no safe code boundary is present.
	BoundaryNone BoundaryClass = iota

	// BoundaryLine is a line-break boundary.
	BoundaryLine

	// BoundaryAssignment is a completed assignment (operator plus
	// initializer) co-occurring with a declaration keyword.
	BoundaryAssignment

	// BoundaryStatement is a statement terminator co-occurring with a
	// declaration or definition keyword.
	BoundaryStatement
)

// String returns the boundary class name for logs and stored segments.
func (b BoundaryClass) String() string {
	switch b {
	case BoundaryLine:
		return "line"
	case BoundaryAssignment:
		return "assignment"
	case BoundaryStatement:
		return "statement"
	default:
		return "none"
	}
}

// ParseBoundaryClass converts a config string to a BoundaryClass.
func ParseBoundaryClass(s string) (BoundaryClass, error) {
	switch s {
	case "line":
		return BoundaryLine, nil
	case "assignment":
		return BoundaryAssignment, nil
	case "statement":
		return BoundaryStatement, nil
	}
	return BoundaryNone, errors.New("unknown boundary class: " + s)
}

// =============================================================================
// PATTERN RULES
// =============================================================================

// PatternRule is one immutable detection rule: if Pattern matches the
// pending buffer, the buffer is treated as code-like in the given language,
// and Boundary is the strongest boundary class the rule can justify.
type PatternRule struct {
	Language string
	Pattern  *regexp.Regexp
	Boundary BoundaryClass
}

// Catalog is a fixed, ordered set of pattern rules. It is built once at
// startup and shared read-only by every session, so no locking is needed.
type Catalog struct {
	rules []PatternRule
}

// NewCatalog builds a catalog from the given rules. The rule slice is
// copied; the catalog never changes after construction.
func NewCatalog(rules []PatternRule) *Catalog {
	c := &Catalog{rules: make([]PatternRule, len(rules))}
	copy(c.rules, rules)
	return c
}

// Extend returns a new catalog with extra rules appended after the
// receiver's rules. The receiver is left untouched.
func (c *Catalog) Extend(extra []PatternRule) *Catalog {
	merged := make([]PatternRule, 0, len(c.rules)+len(extra))
	merged = append(merged, c.rules...)
	merged = append(merged, extra...)
	return &Catalog{rules: merged}
}

// Rules returns the catalog's rules in order. Callers must not mutate the
// returned slice.
func (c *Catalog) Rules() []PatternRule {
	return c.rules
}

// Len returns the number of rules.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// =============================================================================
// DEFAULT CATALOG
// =============================================================================

// Matching is case-insensitive and evaluated against the full pending
// buffer on every decision. The buffer is bounded by the length threshold,
// so re-scanning is cheaper and simpler than incremental match state.

// DefaultCatalog returns the built-in rule set. It covers declarations,
// function/class definitions, imports, and control flow across a C-family
// style and a Python-like style, plus generic markup and structured-data
// heuristics.
func DefaultCatalog() *Catalog {
	return NewCatalog([]PatternRule{
		// C-family variable/constant declarations
		{
			Language: "c-family",
			Pattern:  regexp.MustCompile(`(?i)\b(let|const|var)\s+[A-Za-z_$][\w$]*`),
			Boundary: BoundaryStatement,
		},
		// C-family typed declarations (int x, float y, ...)
		{
			Language: "c-family",
			Pattern:  regexp.MustCompile(`(?i)\b(int|float|double|char|bool|string|long)\s+[A-Za-z_][\w]*\s*[=;,]`),
			Boundary: BoundaryStatement,
		},
		// Function / class definition keywords
		{
			Language: "c-family",
			Pattern:  regexp.MustCompile(`(?i)\b(function|func|class|struct|interface)\s+[A-Za-z_$][\w$]*`),
			Boundary: BoundaryStatement,
		},
		// Python-style definitions
		{
			Language: "python",
			Pattern:  regexp.MustCompile(`(?i)\b(def|class)\s+[A-Za-z_]\w*\s*[(:]`),
			Boundary: BoundaryLine,
		},
		// Python-style imports
		{
			Language: "python",
			Pattern:  regexp.MustCompile(`(?im)^\s*(import|from)\s+[A-Za-z_][\w.]*`),
			Boundary: BoundaryLine,
		},
		// C-family includes / imports
		{
			Language: "c-family",
			Pattern:  regexp.MustCompile(`(?im)^\s*#\s*include\s*[<"]|\bimport\s*\(`),
			Boundary: BoundaryLine,
		},
		// Control-flow keywords (conditionals, loops)
		{
			Language: "generic",
			Pattern:  regexp.MustCompile(`(?i)\b(if|else if|elif|for|while|switch|match)\s*[(:]`),
			Boundary: BoundaryLine,
		},
		// Markup: angle-bracket tags
		{
			Language: "markup",
			Pattern:  regexp.MustCompile(`(?i)</?[a-z][\w-]*(\s[^<>]*)?>`),
			Boundary: BoundaryLine,
		},
		// Structured data: brace/bracket-heavy content with quoted keys
		{
			Language: "data",
			Pattern:  regexp.MustCompile(`[{[]\s*("[^"]*"\s*:|[{[]|\d)`),
			Boundary: BoundaryLine,
		},
	})
}

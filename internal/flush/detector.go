// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package flush

import (
	"regexp"
	"strings"
)

// =============================================================================
// CODE INTEGRITY DETECTOR
// =============================================================================

// Classification is the detector's verdict for one buffer snapshot.
// When IsCode is false, Boundary is always BoundaryNone.
type Classification struct {
	IsCode   bool
	Boundary BoundaryClass
}

// Detector decides whether a pending buffer looks like source code and, if
// so, which boundary class is currently safe to flush on. It holds only an
// immutable catalog reference and compiled helpers, so a single Detector is
// safe for concurrent use by many sessions.
type Detector struct {
	catalog *Catalog

	// assignmentRe requires an initializer after the operator, so a flush
	// never lands between "=" and the value that follows it.
	assignmentRe *regexp.Regexp
	// declarationRe finds declaration/definition keywords whose statements
	// must stay whole.
	declarationRe *regexp.Regexp
}

// NewDetector creates a detector over the given catalog. A nil catalog
// falls back to DefaultCatalog.
func NewDetector(catalog *Catalog) *Detector {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Detector{
		catalog:       catalog,
		assignmentRe:  regexp.MustCompile(`=\s*[^\s=>]`),
		declarationRe: regexp.MustCompile(`(?i)\b(let|const|var|def|func|function|class|int|float|double|char|bool|string|long)\b`),
	}
}

// Catalog returns the detector's catalog.
func (d *Detector) Catalog() *Catalog {
	return d.catalog
}

// Classify tests the buffer against every catalog rule. IsCode is true if
// any rule matches. The boundary is the strongest class present in the
// buffer, checked highest first:
//
//  1. Statement — a statement terminator following the last declaration
//     keyword.
//  2. Assignment — an assignment operator (with its initializer started)
//     following the last declaration keyword.
//  3. Line — a line break with no declaration still open after it.
//
// The priority order is a designed tie-break: when several rules match with
// conflicting classes, flushing at the most specific boundary yields the
// largest safe chunk and avoids splitting a declaration from its
// initializer or a statement from its terminator.
func (d *Detector) Classify(buffer string) Classification {
	if buffer == "" {
		return Classification{}
	}

	strongest := BoundaryNone
	matched := false
	for _, rule := range d.catalog.Rules() {
		if rule.Pattern.MatchString(buffer) {
			matched = true
			if rule.Boundary > strongest {
				strongest = rule.Boundary
			}
		}
	}
	if !matched {
		return Classification{}
	}

	// Degrade from the strongest class the rules allow down to the
	// strongest class the buffer actually contains evidence for.
	for class := strongest; class > BoundaryNone; class-- {
		if d.present(buffer, class) {
			return Classification{IsCode: true, Boundary: class}
		}
	}
	return Classification{IsCode: true, Boundary: BoundaryNone}
}

// present reports whether the buffer holds the evidence a boundary class
// requires. A flush always releases the whole buffer, so the flush point is
// the buffer end: evidence counts only if the last declaration keyword is
// already covered by a later terminator, initializer, or line break.
// Otherwise a buffer like ";let y" would flush between a fresh declaration
// and the initializer still in flight.
func (d *Detector) present(buffer string, class BoundaryClass) bool {
	decl := lastMatchStart(d.declarationRe, buffer)
	switch class {
	case BoundaryStatement:
		term := strings.LastIndex(buffer, ";")
		return term >= 0 && decl >= 0 && decl < term
	case BoundaryAssignment:
		assign := lastMatchStart(d.assignmentRe, buffer)
		return assign >= 0 && decl >= 0 && decl < assign
	case BoundaryLine:
		nl := strings.LastIndexAny(buffer, "\n\r")
		return nl >= 0 && decl < nl
	}
	return false
}

// lastMatchStart returns the start offset of the last match of re in s, or
// -1 when there is none.
func lastMatchStart(re *regexp.Regexp, s string) int {
	locs := re.FindAllStringIndex(s, -1)
	if locs == nil {
		return -1
	}
	return locs[len(locs)-1][0]
}

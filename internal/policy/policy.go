// Package policy implements abwart's built-in retention policies: pure
// predicates over tags or repositories, each tagged with an affection
// (Target/Requirement) and a subject (Tag/Repository).
package policy

import (
	"time"

	"abwart/internal/domain"
)

// Policy is a single named predicate. A policy only ever implements the
// method matching its Subject(); the other is never called by the rule
// engine but returns its input unchanged so the interface stays uniform
// (no per-policy dynamic dispatch beyond the type switch in parse.go).
type Policy interface {
	Identifier() string
	Affection() domain.Affection
	Subject() domain.Subject
	Tidy() bool
	// AppliesToTags returns the subset of tags this policy selects (Target)
	// or keeps (Requirement). now is captured once per rule execution.
	AppliesToTags(tags []domain.Tag, now time.Time) []domain.Tag
	AppliesToRepositories(repos []domain.Repository) []domain.Repository
}

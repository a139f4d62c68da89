package domain

// RulePolicy is a named, parsed policy parameter bound to a rule. The
// identifier selects which builtin policy it configures; Disabled() reports
// whether an empty-string value removed an inherited default for this scope.
type RulePolicy struct {
	Identifier string
	Param      PolicyParam
}

// Rule is a named, scheduled, tidy-annotated bundle of policies applied to
// one instance (spec.md §3).
type Rule struct {
	Name     string
	Schedule string
	Tidy     bool
	Policies map[string]RulePolicy
}

// RuleDefaults is the default policy set + schedule + tidy flag an instance
// falls back to when a rule omits a given policy (spec.md §4.5).
type RuleDefaults struct {
	Schedule string
	Tidy     bool
	Policies map[string]RulePolicy
}

package config

import "abwart/internal/domain"

// Equal reports whether two resolved configs are equivalent for scheduling
// purposes, comparing by source values (raw parameter strings) rather than
// derived objects like compiled regexes, so identical input always compares
// equal regardless of how many times it has been parsed (spec.md §4.5's
// idempotent-reload property, §8 property 2).
func Equal(a, b domain.RegistryConfig) bool {
	if a.InstanceName != b.InstanceName ||
		a.Enabled != b.Enabled ||
		a.Network != b.Network ||
		a.Port != b.Port ||
		a.CleanupSchedule != b.CleanupSchedule {
		return false
	}
	if !authEqual(a.BasicAuth, b.BasicAuth) {
		return false
	}
	if !defaultsEqual(a.Defaults, b.Defaults) {
		return false
	}
	if len(a.Rules) != len(b.Rules) {
		return false
	}
	for name, ruleA := range a.Rules {
		ruleB, ok := b.Rules[name]
		if !ok || !ruleEqual(ruleA, ruleB) {
			return false
		}
	}
	return true
}

func authEqual(a, b *domain.BasicAuth) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return *a == *b
}

func defaultsEqual(a, b domain.RuleDefaults) bool {
	if a.Schedule != b.Schedule || a.Tidy != b.Tidy {
		return false
	}
	return policiesEqual(a.Policies, b.Policies)
}

func ruleEqual(a, b domain.Rule) bool {
	if a.Name != b.Name || a.Schedule != b.Schedule || a.Tidy != b.Tidy {
		return false
	}
	return policiesEqual(a.Policies, b.Policies)
}

func policiesEqual(a, b map[string]domain.RulePolicy) bool {
	if len(a) != len(b) {
		return false
	}
	for id, pa := range a {
		pb, ok := b[id]
		if !ok || pa.Identifier != pb.Identifier || pa.Param.Raw != pb.Param.Raw {
			return false
		}
	}
	return true
}

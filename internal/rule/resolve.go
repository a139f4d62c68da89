// Package rule resolves a domain.Rule plus its defaults chain into concrete
// policy.Policy values, and executes the two-phase Target/Requirement
// filter algorithm over tags and repositories.
package rule

import (
	"abwart/internal/domain"
	"abwart/internal/policy"
)

// tagPolicyIDs and repoPolicyIDs are the full set of recognized identifiers
// per subject, in the order spec.md §4.1 lists them.
var tagPolicyIDs = []string{
	domain.PolicyRevisions,
	domain.PolicyAgeMax,
	domain.PolicyAgeMin,
	domain.PolicyTagPattern,
	domain.PolicySize,
}

var repoPolicyIDs = []string{
	domain.PolicyImagePattern,
}

// Resolved is a rule with its policy set fully resolved against the
// defaults chain and instantiated as concrete policy.Policy values.
type Resolved struct {
	Name         string
	Schedule     string
	Tidy         bool
	TagPolicies  []policy.Policy
	RepoPolicies []policy.Policy
}

// Resolve builds a Resolved rule from r, falling back to defaults for any
// policy identifier r omits, per spec.md §4.5's lookup order:
// rule.<r>.<p> -> default.<p> -> built-in default.
func Resolve(r domain.Rule, defaults domain.RuleDefaults) (Resolved, error) {
	schedule := r.Schedule
	if schedule == "" {
		schedule = defaults.Schedule
	}
	if schedule == "" {
		schedule = domain.DefaultSchedule
	}

	out := Resolved{
		Name:     r.Name,
		Schedule: schedule,
		Tidy:     r.Tidy || defaults.Tidy,
	}

	for _, id := range tagPolicyIDs {
		p, err := resolveOne(id, r.Policies, defaults.Policies)
		if err != nil {
			return Resolved{}, err
		}
		if p != nil {
			out.TagPolicies = append(out.TagPolicies, p)
		}
	}

	for _, id := range repoPolicyIDs {
		p, err := resolveOne(id, r.Policies, defaults.Policies)
		if err != nil {
			return Resolved{}, err
		}
		if p != nil {
			out.RepoPolicies = append(out.RepoPolicies, p)
		}
	}

	return out, nil
}

// resolveOne applies one identifier's lookup chain: rule -> defaults ->
// built-in. A key present in rule or defaults (even disabled, i.e. empty
// raw) wins outright and is never overridden by a later link in the chain.
func resolveOne(id string, rulePolicies, defaultPolicies map[string]domain.RulePolicy) (policy.Policy, error) {
	if rp, ok := rulePolicies[id]; ok {
		return policy.New(id, rp.Param)
	}
	if rp, ok := defaultPolicies[id]; ok {
		return policy.New(id, rp.Param)
	}
	return builtinDefault(id), nil
}

// builtinDefault returns the global built-in default policy for revisions
// and image.pattern, or nil. tag.pattern's default (.+) matches every tag,
// so it is not instantiated: an unset tag.pattern adds nothing to the Target
// union.
func builtinDefault(id string) policy.Policy {
	switch id {
	case domain.PolicyRevisions:
		return policy.DefaultRevisions()
	case domain.PolicyImagePattern:
		return policy.DefaultImagePattern()
	default:
		return nil
	}
}

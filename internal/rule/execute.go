package rule

import (
	"time"

	"abwart/internal/domain"
	"abwart/internal/policy"
)

// SelectTags runs the two-phase Target ∪ / Requirement ∩ algorithm over one
// repository's tag snapshot (spec.md §4.2 steps 1-5). A rule with no Target
// tag policy selects nothing, by construction: the union phase starts from
// an empty set and only Target policies ever add to it.
func (r Resolved) SelectTags(tags []domain.Tag, now time.Time) []domain.Tag {
	return selectTags(r.TagPolicies, tags, now)
}

// SelectRepositories runs the same two-phase algorithm over the registry's
// repository list to decide which repositories this rule applies to.
func (r Resolved) SelectRepositories(repos []domain.Repository) []domain.Repository {
	return selectRepositories(r.RepoPolicies, repos)
}

func selectTags(policies []policy.Policy, tags []domain.Tag, now time.Time) []domain.Tag {
	var targets, requirements []policy.Policy
	for _, p := range policies {
		if p.Affection() == domain.Target {
			targets = append(targets, p)
		} else {
			requirements = append(requirements, p)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	selected := unionTags(targets, tags, now)
	for _, p := range requirements {
		kept := p.AppliesToTags(tags, now)
		selected = intersectTags(selected, kept)
	}
	return selected
}

func selectRepositories(policies []policy.Policy, repos []domain.Repository) []domain.Repository {
	var targets, requirements []policy.Policy
	for _, p := range policies {
		if p.Affection() == domain.Target {
			targets = append(targets, p)
		} else {
			requirements = append(requirements, p)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	selected := unionRepositories(targets, repos)
	for _, p := range requirements {
		kept := p.AppliesToRepositories(repos)
		selected = intersectRepositories(selected, kept)
	}
	return selected
}

func unionTags(targets []policy.Policy, tags []domain.Tag, now time.Time) []domain.Tag {
	seen := make(map[string]domain.Tag)
	var order []string
	for _, p := range targets {
		for _, t := range p.AppliesToTags(tags, now) {
			if _, ok := seen[t.Name]; !ok {
				order = append(order, t.Name)
			}
			seen[t.Name] = t
		}
	}
	out := make([]domain.Tag, 0, len(order))
	for _, name := range order {
		out = append(out, seen[name])
	}
	return out
}

func intersectTags(selected, kept []domain.Tag) []domain.Tag {
	allowed := make(map[string]bool, len(kept))
	for _, t := range kept {
		allowed[t.Name] = true
	}
	out := selected[:0:0]
	for _, t := range selected {
		if allowed[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

func unionRepositories(targets []policy.Policy, repos []domain.Repository) []domain.Repository {
	seen := make(map[string]domain.Repository)
	var order []string
	for _, p := range targets {
		for _, r := range p.AppliesToRepositories(repos) {
			if _, ok := seen[r.Name]; !ok {
				order = append(order, r.Name)
			}
			seen[r.Name] = r
		}
	}
	out := make([]domain.Repository, 0, len(order))
	for _, name := range order {
		out = append(out, seen[name])
	}
	return out
}

func intersectRepositories(selected, kept []domain.Repository) []domain.Repository {
	allowed := make(map[string]bool, len(kept))
	for _, r := range kept {
		allowed[r.Name] = true
	}
	out := selected[:0:0]
	for _, r := range selected {
		if allowed[r.Name] {
			out = append(out, r)
		}
	}
	return out
}

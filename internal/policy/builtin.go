package policy

import (
	"regexp"
	"sort"
	"time"

	"abwart/internal/domain"
)

// revisionsPolicy keeps the N newest tags by creation time, selecting the
// rest for deletion. Ties break by name, ascending.
type revisionsPolicy struct {
	keep int
}

func (p revisionsPolicy) Identifier() string           { return domain.PolicyRevisions }
func (p revisionsPolicy) Affection() domain.Affection  { return domain.Target }
func (p revisionsPolicy) Subject() domain.Subject      { return domain.SubjectTag }
func (p revisionsPolicy) Tidy() bool                   { return false }
func (p revisionsPolicy) AppliesToRepositories(repos []domain.Repository) []domain.Repository {
	return repos
}

func (p revisionsPolicy) AppliesToTags(tags []domain.Tag, now time.Time) []domain.Tag {
	if len(tags) <= p.keep {
		return nil
	}
	sorted := make([]domain.Tag, len(tags))
	copy(sorted, tags)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := sorted[i], sorted[j]
		if ti.Created.Equal(tj.Created) {
			return ti.Name < tj.Name
		}
		return ti.Created.Before(tj.Created)
	})
	return sorted[:len(sorted)-p.keep]
}

// ageMaxPolicy selects tags older than a duration threshold.
type ageMaxPolicy struct {
	threshold time.Duration
}

func (p ageMaxPolicy) Identifier() string          { return domain.PolicyAgeMax }
func (p ageMaxPolicy) Affection() domain.Affection { return domain.Target }
func (p ageMaxPolicy) Subject() domain.Subject     { return domain.SubjectTag }
func (p ageMaxPolicy) Tidy() bool                  { return false }
func (p ageMaxPolicy) AppliesToRepositories(repos []domain.Repository) []domain.Repository {
	return repos
}

func (p ageMaxPolicy) AppliesToTags(tags []domain.Tag, now time.Time) []domain.Tag {
	var selected []domain.Tag
	for _, t := range tags {
		if t.EffectiveAge(now, true) > p.threshold {
			selected = append(selected, t)
		}
	}
	return selected
}

// ageMinPolicy keeps only tags older than a duration threshold.
type ageMinPolicy struct {
	threshold time.Duration
}

func (p ageMinPolicy) Identifier() string          { return domain.PolicyAgeMin }
func (p ageMinPolicy) Affection() domain.Affection { return domain.Requirement }
func (p ageMinPolicy) Subject() domain.Subject     { return domain.SubjectTag }
func (p ageMinPolicy) Tidy() bool                  { return false }
func (p ageMinPolicy) AppliesToRepositories(repos []domain.Repository) []domain.Repository {
	return repos
}

func (p ageMinPolicy) AppliesToTags(tags []domain.Tag, now time.Time) []domain.Tag {
	var kept []domain.Tag
	for _, t := range tags {
		if t.EffectiveAge(now, false) > p.threshold {
			kept = append(kept, t)
		}
	}
	return kept
}

// tagPatternPolicy selects tags whose name fully matches a regex.
type tagPatternPolicy struct {
	pattern *regexp.Regexp
}

func (p tagPatternPolicy) Identifier() string          { return domain.PolicyTagPattern }
func (p tagPatternPolicy) Affection() domain.Affection { return domain.Target }
func (p tagPatternPolicy) Subject() domain.Subject     { return domain.SubjectTag }
func (p tagPatternPolicy) Tidy() bool                  { return false }
func (p tagPatternPolicy) AppliesToRepositories(repos []domain.Repository) []domain.Repository {
	return repos
}

func (p tagPatternPolicy) AppliesToTags(tags []domain.Tag, now time.Time) []domain.Tag {
	var selected []domain.Tag
	for _, t := range tags {
		if p.pattern.MatchString(t.Name) {
			selected = append(selected, t)
		}
	}
	return selected
}

// sizePolicy selects tags whose total blob size exceeds a byte threshold.
type sizePolicy struct {
	threshold int64
}

func (p sizePolicy) Identifier() string          { return domain.PolicySize }
func (p sizePolicy) Affection() domain.Affection { return domain.Target }
func (p sizePolicy) Subject() domain.Subject     { return domain.SubjectTag }
func (p sizePolicy) Tidy() bool                  { return false }
func (p sizePolicy) AppliesToRepositories(repos []domain.Repository) []domain.Repository {
	return repos
}

func (p sizePolicy) AppliesToTags(tags []domain.Tag, now time.Time) []domain.Tag {
	var selected []domain.Tag
	for _, t := range tags {
		if t.TotalBlobSize > p.threshold {
			selected = append(selected, t)
		}
	}
	return selected
}

// imagePatternPolicy selects repositories whose name fully matches a regex.
type imagePatternPolicy struct {
	pattern *regexp.Regexp
}

func (p imagePatternPolicy) Identifier() string          { return domain.PolicyImagePattern }
func (p imagePatternPolicy) Affection() domain.Affection { return domain.Target }
func (p imagePatternPolicy) Subject() domain.Subject     { return domain.SubjectRepository }
func (p imagePatternPolicy) Tidy() bool                  { return false }
func (p imagePatternPolicy) AppliesToTags(tags []domain.Tag, now time.Time) []domain.Tag {
	return tags
}

func (p imagePatternPolicy) AppliesToRepositories(repos []domain.Repository) []domain.Repository {
	var selected []domain.Repository
	for _, r := range repos {
		if p.pattern.MatchString(r.Name) {
			selected = append(selected, r)
		}
	}
	return selected
}

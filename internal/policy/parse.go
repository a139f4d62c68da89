package policy

import (
	"fmt"
	"regexp"
	"strconv"

	"abwart/internal/domain"
	"abwart/pkg/bytesize"
	"abwart/pkg/duration"
)

// ParseParam parses a policy's raw string value into its typed parameter,
// per the grammar for that identifier (spec.md §4.1). An empty string is a
// valid, disabled parameter and is returned as-is without further parsing.
func ParseParam(identifier, raw string) (domain.PolicyParam, error) {
	param := domain.PolicyParam{Raw: raw}
	if raw == "" {
		return param, nil
	}

	switch identifier {
	case domain.PolicyRevisions:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.PolicyParam{}, fmt.Errorf("policy %s: invalid integer %q: %w", identifier, raw, err)
		}
		if n < 0 {
			return domain.PolicyParam{}, fmt.Errorf("policy %s: negative revision count %q", identifier, raw)
		}
		param.Count = n

	case domain.PolicyAgeMax, domain.PolicyAgeMin:
		d, err := duration.Parse(raw)
		if err != nil {
			return domain.PolicyParam{}, fmt.Errorf("policy %s: %w", identifier, err)
		}
		param.Duration = d

	case domain.PolicySize:
		n, err := bytesize.Parse(raw)
		if err != nil {
			return domain.PolicyParam{}, fmt.Errorf("policy %s: %w", identifier, err)
		}
		param.Bytes = n

	case domain.PolicyTagPattern, domain.PolicyImagePattern:
		re, err := regexp.Compile("^(?:" + raw + ")$")
		if err != nil {
			return domain.PolicyParam{}, fmt.Errorf("policy %s: invalid pattern %q: %w", identifier, raw, err)
		}
		param.Pattern = re

	default:
		return domain.PolicyParam{}, fmt.Errorf("unknown policy identifier %q", identifier)
	}

	return param, nil
}

// New constructs the built-in Policy value for an identifier from an
// already-parsed parameter. Returns (nil, nil) when the parameter is
// disabled (empty raw value), equivalent to the policy's absence.
func New(identifier string, param domain.PolicyParam) (Policy, error) {
	if param.Disabled() {
		return nil, nil
	}

	switch identifier {
	case domain.PolicyRevisions:
		return revisionsPolicy{keep: param.Count}, nil
	case domain.PolicyAgeMax:
		return ageMaxPolicy{threshold: param.Duration}, nil
	case domain.PolicyAgeMin:
		return ageMinPolicy{threshold: param.Duration}, nil
	case domain.PolicyTagPattern:
		return tagPatternPolicy{pattern: param.Pattern}, nil
	case domain.PolicySize:
		return sizePolicy{threshold: param.Bytes}, nil
	case domain.PolicyImagePattern:
		return imagePatternPolicy{pattern: param.Pattern}, nil
	default:
		return nil, fmt.Errorf("unknown policy identifier %q", identifier)
	}
}

// DefaultRevisions, DefaultTagPattern and DefaultImagePattern build the
// policies for spec.md §4.1's "Default" column. The rule resolver uses
// DefaultRevisions and DefaultImagePattern when a rule and its defaults both
// omit that identifier; it does not use DefaultTagPattern.
func DefaultRevisions() Policy {
	return revisionsPolicy{keep: domain.DefaultRevisions}
}

func DefaultTagPattern() Policy {
	re := regexp.MustCompile("^(?:" + domain.DefaultTagPattern + ")$")
	return tagPatternPolicy{pattern: re}
}

func DefaultImagePattern() Policy {
	re := regexp.MustCompile("^(?:" + domain.DefaultImagePattern + ")$")
	return imagePatternPolicy{pattern: re}
}

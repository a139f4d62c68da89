package config

import (
	"fmt"
	"strconv"
	"strings"

	"abwart/internal/domain"
	"abwart/internal/policy"
)

// DefaultPort is the registry HTTP port assumed when neither a label/static
// "port" key nor the container's own exposed port tells us otherwise.
const DefaultPort = 5000

var policyIdentifiers = map[string]bool{
	domain.PolicyRevisions:    true,
	domain.PolicyAgeMax:       true,
	domain.PolicyAgeMin:       true,
	domain.PolicyTagPattern:   true,
	domain.PolicySize:         true,
	domain.PolicyImagePattern: true,
}

// ResolveInstance merges instanceName's container labels with its static
// file entry (static winning on conflict) and parses the result into an
// effective domain.RegistryConfig. Per-key parse failures are collected as
// warnings and the offending key is simply omitted (spec.md §7's
// Config-parse policy: invalidate just that policy/rule, continue).
func ResolveInstance(instanceName string, labels map[string]string, static StaticFile) (domain.RegistryConfig, []error) {
	flat := mergeFlat(FlattenLabels(labels), static.Registries[instanceName])
	cfg, warnings := Resolve(flat)
	cfg.InstanceName = instanceName
	return cfg, warnings
}

// Resolve parses one instance's merged flat key/value map into an
// effective RegistryConfig (spec.md §4.5's path grammar). Host is left
// empty: it is derived by the caller from network + instance name + port,
// or from the container's own reported address (spec.md §4.3).
func Resolve(flat map[string]string) (domain.RegistryConfig, []error) {
	cfg := domain.RegistryConfig{
		// Port 0 means "unconfigured": the caller falls back to the
		// container's own exposed port, then DefaultPort (spec.md §4.3).
		Rules: make(map[string]domain.Rule),
	}
	cfg.Defaults.Policies = make(map[string]domain.RulePolicy)

	var warnings []error
	var username, password string

	for key, value := range flat {
		switch {
		case key == "enable":
			cfg.Enabled = parseBool(value)
		case key == "network":
			cfg.Network = value
		case key == "port":
			n, err := strconv.Atoi(value)
			if err != nil {
				warnings = append(warnings, fmt.Errorf("port: invalid integer %q: %w", value, err))
				continue
			}
			cfg.Port = n
		case key == "username":
			username = value
		case key == "password":
			password = value
		case key == "cleanup":
			cfg.CleanupSchedule = value

		case key == "default.schedule":
			cfg.Defaults.Schedule = value
		case key == "default.tidy":
			cfg.Defaults.Tidy = parseBool(value)
		case strings.HasPrefix(key, "default."):
			id := strings.TrimPrefix(key, "default.")
			if !policyIdentifiers[id] {
				continue // unrecognized key, silently ignored
			}
			param, err := policy.ParseParam(id, value)
			if err != nil {
				warnings = append(warnings, fmt.Errorf("default.%s: %w", id, err))
				continue
			}
			cfg.Defaults.Policies[id] = domain.RulePolicy{Identifier: id, Param: param}

		case strings.HasPrefix(key, "rule."):
			if err := assignRuleKey(cfg.Rules, strings.TrimPrefix(key, "rule."), value); err != nil {
				warnings = append(warnings, err)
			}

		default:
			// Unrecognized key: forward-compatible, silently ignored.
		}
	}

	if username != "" && password != "" {
		cfg.BasicAuth = &domain.BasicAuth{Username: username, Password: password}
	}

	return cfg, warnings
}

// assignRuleKey handles one rule.<name>.<rest> key, where rest is
// "schedule", "tidy", or a policy identifier (itself possibly dotted, e.g.
// "age.min").
func assignRuleKey(rules map[string]domain.Rule, nameAndRest, value string) error {
	parts := strings.SplitN(nameAndRest, ".", 2)
	if len(parts) != 2 {
		return nil // malformed, no rule name or no rest: ignore
	}
	ruleName, rest := parts[0], parts[1]

	rule, ok := rules[ruleName]
	if !ok {
		rule = domain.Rule{Name: ruleName, Policies: make(map[string]domain.RulePolicy)}
	}

	switch rest {
	case "schedule":
		rule.Schedule = value
	case "tidy":
		rule.Tidy = parseBool(value)
	default:
		if !policyIdentifiers[rest] {
			rules[ruleName] = rule
			return nil // unrecognized key, silently ignored
		}
		param, err := policy.ParseParam(rest, value)
		if err != nil {
			rules[ruleName] = rule
			return fmt.Errorf("rule.%s.%s: %w", ruleName, rest, err)
		}
		rule.Policies[rest] = domain.RulePolicy{Identifier: rest, Param: param}
	}

	rules[ruleName] = rule
	return nil
}

func parseBool(s string) bool {
	return s == "true"
}

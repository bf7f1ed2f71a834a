package packsize

import (
	"fmt"
	"strings"
)

// Rules selects the separator priority table and the supplier-specific
// corrections applied while resolving a pack-size string.
type Rules string

const (
	RulesDefault        Rules = "default"
	RulesKeany          Rules = "keany"
	RulesPFG            Rules = "pfg"
	RulesNewSysco       Rules = "new_sysco"
	RulesCoastalSunbelt Rules = "coastal_sunbelt"
)

// String implements fmt.Stringer for logging
func (r Rules) String() string {
	if r == "" {
		return string(RulesDefault)
	}
	return string(r)
}

// IsValid returns true for the known rule sets. The empty value means default.
func (r Rules) IsValid() bool {
	switch r {
	case "", RulesDefault, RulesKeany, RulesPFG, RulesNewSysco, RulesCoastalSunbelt:
		return true
	}
	return false
}

// ParseRules maps a configuration value onto a rule set.
func ParseRules(s string) (Rules, error) {
	r := Rules(strings.ToLower(strings.TrimSpace(s)))
	if r == "" {
		return RulesDefault, nil
	}
	if !r.IsValid() {
		return RulesDefault, fmt.Errorf("unknown pack size rules %q", s)
	}
	return r, nil
}

// separatorPriority scores a separator token. Higher wins; below 1 never wins.
func (r Rules) separatorPriority(sep string) int {
	switch r {
	case RulesKeany:
		switch sep {
		case " ":
			return 3
		case "-":
			return 2
		case "/":
			return 1
		}
	case RulesPFG, RulesNewSysco:
		if sep == "@" {
			return 2
		}
	default:
		switch sep {
		case "@":
			return 3
		case " ":
			return 2
		case "/":
			return 1
		}
	}
	return 0
}

// Package enrich turns listing items into enriched records with one or two
// dependent lookups per item: a detail fetch keyed by the item identifier
// and a geolocation of the item's IP address.
//
// Each lookup fails according to its own Policy. DegradeToDefault keeps the
// item with a default value and only warns on the console. SkipAndLog drops
// the item and writes exactly one error log line.
package enrich

import (
	"fmt"
	"strings"
)

// Policy selects what happens to an item when one of its lookups fails.
type Policy string

const (
	// DegradeToDefault keeps the item with the lookup's default value.
	DegradeToDefault Policy = "degrade"

	// SkipAndLog drops the item and records the failure in the error log.
	SkipAndLog Policy = "skip"
)

// ParsePolicy parses a policy name. The empty string yields def.
func ParsePolicy(s string, def Policy) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return def, nil
	case DegradeToDefault:
		return DegradeToDefault, nil
	case SkipAndLog:
		return SkipAndLog, nil
	default:
		return "", fmt.Errorf("unknown enrichment policy %q (want %q or %q)", s, DegradeToDefault, SkipAndLog)
	}
}

// UnmarshalYAML lets policies be written by name in config files.
func (p *Policy) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParsePolicy(s, "")
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

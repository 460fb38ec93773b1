package utils

import (
	"regexp"
	"strings"
)

// Marketplace exports write addresses as "<street>, <City>-<pin>, <State>-<code>".
// The numeric suffix after the hyphen is a postal/state code and is stripped.
var addressPartRe = regexp.MustCompile(`^(.*\S)\s*-\s*\d+$`)

// ParseCityState extracts (city, state) from a free-text delivery address.
// Both values are returned empty when the address does not match the expected
// shape; that is a soft miss, not an error, and callers must leave the derived
// fields unset.
func ParseCityState(address string) (city string, state string) {
	parts := strings.Split(address, ",")
	if len(parts) < 3 {
		return "", ""
	}

	cityMatch := addressPartRe.FindStringSubmatch(strings.TrimSpace(parts[len(parts)-2]))
	stateMatch := addressPartRe.FindStringSubmatch(strings.TrimSpace(parts[len(parts)-1]))
	if cityMatch == nil || stateMatch == nil {
		return "", ""
	}
	return cityMatch[1], stateMatch[1]
}

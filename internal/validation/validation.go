// Package validation provides centralized input validation for sensorlog
// configuration values that are not table declarations.
package validation

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for channel names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// DefaultNameRules returns the rules for channel names: they become
// column names, so only letters, digits and underscores are allowed.
func DefaultNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowDots:    false,
		AllowHyphens: false,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	if name != "" && unicode.IsDigit(rune(name[0])) {
		return fmt.Errorf("name cannot start with a digit")
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateChannelName validates a channel name with default rules.
func ValidateChannelName(name string) error {
	return ValidateName(name, DefaultNameRules())
}

// =============================================================================
// OID Validation
// =============================================================================

// ValidateOID checks that oid is a numeric dotted object identifier such as
// "1.3.6.1.4.1.9999.1.1". A leading dot is accepted.
func ValidateOID(oid string) error {
	if oid == "" {
		return fmt.Errorf("oid cannot be empty")
	}

	arcs := strings.Split(strings.TrimPrefix(oid, "."), ".")
	if len(arcs) < 2 {
		return fmt.Errorf("oid %q needs at least two arcs", oid)
	}

	for i, arc := range arcs {
		if arc == "" {
			return fmt.Errorf("oid %q has an empty arc at position %d", oid, i)
		}
		if _, err := strconv.ParseUint(arc, 10, 32); err != nil {
			return fmt.Errorf("oid %q has a non-numeric arc %q", oid, arc)
		}
	}

	// The first arc is 0, 1 or 2 (ITU-T, ISO, joint).
	if arcs[0] != "0" && arcs[0] != "1" && arcs[0] != "2" {
		return fmt.Errorf("oid %q must start with 0, 1 or 2", oid)
	}

	return nil
}

// =============================================================================
// Address Validation
// =============================================================================

// ValidateListenAddr checks a "host:port" listen address. The host may be
// empty to listen on every interface.
func ValidateListenAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}

	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q in listen address", port)
	}

	if strings.ContainsAny(host, " /\\") {
		return fmt.Errorf("invalid host %q in listen address", host)
	}

	return nil
}

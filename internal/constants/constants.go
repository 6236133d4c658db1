// Package constants provides centralized domain-specific constants
// for sensorlog.
//
// This file consolidates the magic strings accepted in configuration so
// the loader, the sources and the sampler agree on them.
package constants

// =============================================================================
// Source Types - Where raw readings come from
// =============================================================================

const (
	// SourceRandom generates uniform integers, for bench tests without sensors
	SourceRandom = "random"

	// SourceSNMP reads one OID per channel from an SNMP agent
	SourceSNMP = "snmp"
)

// ValidSourceTypes contains all valid source type values
var ValidSourceTypes = []string{SourceRandom, SourceSNMP}

// IsValidSourceType checks if a source type is valid
func IsValidSourceType(t string) bool {
	return contains(ValidSourceTypes, t)
}

// =============================================================================
// SNMP Security Levels - SNMPv3 message flags
// =============================================================================

const (
	// SecurityNoAuthNoPriv sends unauthenticated, unencrypted requests
	SecurityNoAuthNoPriv = "noAuthNoPriv"

	// SecurityAuthNoPriv authenticates requests without encrypting them
	SecurityAuthNoPriv = "authNoPriv"

	// SecurityAuthPriv authenticates and encrypts requests
	SecurityAuthPriv = "authPriv"
)

// ValidSecurityLevels contains all valid SNMPv3 security level values
var ValidSecurityLevels = []string{SecurityNoAuthNoPriv, SecurityAuthNoPriv, SecurityAuthPriv}

// IsValidSecurityLevel checks if a security level is valid.
// An empty level means noAuthNoPriv.
func IsValidSecurityLevel(level string) bool {
	return level == "" || contains(ValidSecurityLevels, level)
}

// =============================================================================
// Reducers - Per-channel reduction of a cycle's readings
// =============================================================================

const (
	// ReducerMean averages the valid readings
	ReducerMean = "mean"

	// ReducerMedian takes the middle valid reading
	ReducerMedian = "median"
)

// =============================================================================
// Channel Health
// =============================================================================

const (
	// ConsecutiveFailuresForWarn is the number of failed reads in a row
	// after which a source failure is logged at warn level
	ConsecutiveFailuresForWarn = 3
)

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// Package compat decides whether the CloudManager service this build talks to
// runs a version the client was built against.
//
// Compatibility is advisory and reachability is mandatory: an unknown version
// produces a warning verdict, while an unreachable service produces an
// Unavailable verdict that callers treat as fatal for mutating operations.
package compat

import (
	"slices"
	"strings"
	"time"
)

// State is the negotiator's position in its check lifecycle.
type State int

const (
	Unchecked State = iota
	Checking
	Compatible
	IncompatibleWarning
	Unavailable
)

var stateNames = map[State]string{
	Unchecked:           "unchecked",
	Checking:            "checking",
	Compatible:          "compatible",
	IncompatibleWarning: "incompatible_warning",
	Unavailable:         "unavailable",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Verdict is the structured result of a compatibility probe.
type Verdict struct {
	State      State     `json:"state"`
	Success    bool      `json:"success"`
	Compatible bool      `json:"compatible"`
	Version    string    `json:"version,omitempty"`
	Message    string    `json:"message"`
	Warning    bool      `json:"warning,omitempty"`
	CheckedAt  time.Time `json:"checked_at,omitempty"`
	// Err is the probe failure behind an Unavailable verdict.
	Err error `json:"-"`
}

// Reachable reports whether the probe reached the service.
func (v Verdict) Reachable() bool {
	return v.State == Compatible || v.State == IncompatibleWarning
}

// Set is an explicit allow-list of exact version strings.
//
// Membership is an exact string match. The original deployment documented a
// "same major version is compatible" policy but implemented exact matching;
// this keeps the implemented behaviour; "1.2.0" is not compatible with a set
// containing only "1.0.0" and "1.1.0". Extending compatibility means
// extending the list.
type Set struct {
	versions []string
}

// NewSet builds a Set, dropping blank entries and duplicates.
func NewSet(versions ...string) Set {
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return Set{versions: out}
}

// Contains reports whether version is in the set.
func (s Set) Contains(version string) bool {
	return slices.Contains(s.versions, version)
}

// Versions returns a copy of the configured versions.
func (s Set) Versions() []string {
	return slices.Clone(s.versions)
}

// Len returns the number of versions in the set.
func (s Set) Len() int {
	return len(s.versions)
}

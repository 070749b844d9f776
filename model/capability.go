package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Capability is one optional instrumentation behaviour of a run.
type Capability uint8

const (
	// CapabilityDuration records the screen and resolves the action duration
	// from the start and stop keyframes.
	CapabilityDuration Capability = 1 << iota
	// CapabilityPerformance samples CPU, memory and FPS.
	CapabilityPerformance
	// CapabilityLog streams device logs to a file.
	CapabilityLog
	// CapabilityRecord records the screen and extracts every frame, used to
	// harvest keyframes before duration runs.
	CapabilityRecord
)

// ErrUnknownCapability is returned by ParseCapability for unsupported names.
var ErrUnknownCapability = errors.New("unknown capability")

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapabilityDuration, "duration"},
	{CapabilityPerformance, "performance"},
	{CapabilityLog, "log"},
	{CapabilityRecord, "record"},
}

func (c Capability) String() string {
	for _, n := range capabilityNames {
		if n.c == c {
			return n.name
		}
	}
	return fmt.Sprintf("capability(%d)", uint8(c))
}

// ParseCapability converts a capability name into a Capability.
func ParseCapability(name string) (Capability, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, n := range capabilityNames {
		if n.name == name {
			return n.c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCapability, name)
}

// CapabilitySet is a set of capabilities. The zero value is the "nothing"
// mode: the action runs without instrumentation.
type CapabilitySet uint8

// NewCapabilitySet builds a set from individual capabilities.
func NewCapabilitySet(cs ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range cs {
		s |= CapabilitySet(c)
	}
	return s
}

// ParseCapabilitySet parses a list of capability names.
func ParseCapabilitySet(names []string) (CapabilitySet, error) {
	var s CapabilitySet
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			c, err := ParseCapability(part)
			if err != nil {
				return 0, err
			}
			s |= CapabilitySet(c)
		}
	}
	return s, nil
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	return s&CapabilitySet(c) != 0
}

// Empty reports whether no capability was requested.
func (s CapabilitySet) Empty() bool {
	return s == 0
}

// Records reports whether any capability needs a screen recording.
func (s CapabilitySet) Records() bool {
	return s.Has(CapabilityDuration) || s.Has(CapabilityRecord)
}

// List returns the capabilities in declaration order.
func (s CapabilitySet) List() []Capability {
	var out []Capability
	for _, n := range capabilityNames {
		if s.Has(n.c) {
			out = append(out, n.c)
		}
	}
	return out
}

// Names returns the capability names in declaration order.
func (s CapabilitySet) Names() []string {
	names := []string{}
	for _, c := range s.List() {
		names = append(names, c.String())
	}
	return names
}

func (s CapabilitySet) String() string {
	if s.Empty() {
		return "nothing"
	}
	return strings.Join(s.Names(), ",")
}

// MarshalJSON encodes the set as its list of names.
func (s CapabilitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON decodes a list of capability names.
func (s *CapabilitySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	set, err := ParseCapabilitySet(names)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

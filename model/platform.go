package model

import (
	"errors"
	"fmt"
	"strings"
)

// Platform identifies the device family a run targets.
type Platform string

const (
	PlatformAndroid Platform = "Android"
	PlatformIOS     Platform = "iOS"
)

// ErrUnknownPlatform is returned by ParsePlatform for unsupported names.
var ErrUnknownPlatform = errors.New("unknown platform")

// ParsePlatform converts a user supplied platform name (case-insensitive)
// into a Platform.
func ParsePlatform(name string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "android":
		return PlatformAndroid, nil
	case "ios":
		return PlatformIOS, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
}

func (p Platform) String() string {
	return string(p)
}

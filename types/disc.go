package types

import (
	"fmt"
	"regexp"
	"strings"
)

// ChannelMode selects mono or stereo output for a transcoded disc.
type ChannelMode string

const (
	ChannelMono   ChannelMode = "mono"
	ChannelStereo ChannelMode = "stereo"
)

// ParseChannelMode parses a channel mode. Empty defaults to mono.
func ParseChannelMode(s string) (ChannelMode, error) {
	switch ChannelMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ChannelMono:
		return ChannelMono, nil
	case ChannelStereo:
		return ChannelStereo, nil
	default:
		return "", fmt.Errorf("invalid audio type %q: must be mono or stereo", s)
	}
}

// discNamePattern restricts disc names to characters valid in a resource location
// path segment. Names become file names inside the pack.
var discNamePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateDiscName checks that a disc name is usable as a pack path segment.
func ValidateDiscName(name string) error {
	if !discNamePattern.MatchString(name) {
		return fmt.Errorf("invalid disc name %q: use 1-64 lowercase letters, digits, '_' or '-'", name)
	}
	return nil
}

// PackKey returns the remote object key of a token's pack.
func PackKey(token string) string {
	return token + ".zip"
}

package types

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// PlatformVersion is a target game version such as 1.21.4.
// A two-component version ("1.21") has Patch 0.
type PlatformVersion struct {
	Major int
	Minor int
	Patch int
}

// ParsePlatformVersion parses "major.minor" or "major.minor.patch".
// Fields are compared numerically, so "1.21.10" sorts after "1.21.4".
func ParsePlatformVersion(s string) (PlatformVersion, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PlatformVersion{}, fmt.Errorf("platform version is empty")
	}

	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return PlatformVersion{}, fmt.Errorf("invalid platform version %q: want major.minor[.patch]", s)
	}

	nums := [3]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return PlatformVersion{}, fmt.Errorf("invalid platform version %q: field %q is not a non-negative integer", s, p)
		}
		nums[i] = n
	}

	return PlatformVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Compare returns -1, 0 or 1 comparing v to o field by field.
func (v PlatformVersion) Compare(o PlatformVersion) int {
	if c := cmp.Compare(v.Major, o.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, o.Minor); c != 0 {
		return c
	}
	return cmp.Compare(v.Patch, o.Patch)
}

// AtLeast reports whether v >= o.
func (v PlatformVersion) AtLeast(o PlatformVersion) bool {
	return v.Compare(o) >= 0
}

func (v PlatformVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

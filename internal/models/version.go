package models

import "strings"

// Version is an opaque dotted kernel release identifier such as "3.2".
// Ordering between versions is whatever the caller supplies.
type Version string

// String returns the version as string.
func (v Version) String() string {
	return string(v)
}

// Components splits the version on dots. No numeric parsing is done.
func (v Version) Components() []string {
	return strings.Split(string(v), ".")
}

// Major returns the first dot-separated component.
func (v Version) Major() string {
	return v.Components()[0]
}

// Versions converts raw identifiers into versions, preserving order.
func Versions(raw ...string) []Version {
	out := make([]Version, 0, len(raw))
	for _, r := range raw {
		out = append(out, Version(strings.TrimSpace(r)))
	}
	return out
}

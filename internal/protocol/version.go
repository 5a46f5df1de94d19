package protocol

import "fmt"

// Version is a protocol (major, minor) pair.
type Version struct {
	Major int16
	Minor int16
}

// Local is the version this implementation speaks.
var Local = Version{Major: MajorVersion, Minor: MinorVersion}

// V returns the version major.minor.
func V(major, minor int16) Version {
	return Version{Major: major, Minor: minor}
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// AtLeast reports whether v is o or newer.
func (v Version) AtLeast(o Version) bool {
	return !v.Less(o)
}

func (v Version) IsZero() bool {
	return v == Version{}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

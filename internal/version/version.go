// Package version holds build metadata for the kvmlink binary.
package version

import (
	"fmt"
	"runtime"

	"github.com/chronologos/kvmlink/internal/protocol"
)

// Version and Commit are set at build time via:
//
//	go build -ldflags "-X ...version.VERSION=0.4.0 -X ...version.Commit=abc123"
var (
	VERSION = "dev"
	Commit  = "dev"
)

// String is the one-line version banner, including the protocol version
// this build speaks.
func String() string {
	return fmt.Sprintf("kvmlink %s (%s) protocol %s %s/%s",
		VERSION, Commit, protocol.Local, runtime.GOOS, runtime.GOARCH)
}

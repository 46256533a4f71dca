// Package version reports how a relay binary was built.
//
// The variables below are overridden with -ldflags at build time, e.g.
//
//	go build -ldflags "-X github.com/rickgao/phone-relay/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/phone-relay/internal/version.Commit=$(git rev-parse --short HEAD)" ./cmd/relay
package version

import (
	"fmt"
	"io"
	"runtime"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns "<version> (<commit>, <build time>)".
func String() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit, BuildTime)
}

// Print writes the --version output for binary: the build line followed by
// the Go toolchain and platform.
func Print(w io.Writer, binary string) {
	fmt.Fprintf(w, "%s %s\n  go: %s\n  platform: %s/%s\n",
		binary, String(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Attrs returns the build information as slog key/value pairs.
func Attrs() []any {
	return []any{"version", Version, "commit", Commit, "build_time", BuildTime, "go", runtime.Version()}
}

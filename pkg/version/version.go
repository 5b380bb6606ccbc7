package version

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// Set by the linker with -X
var (
	GitSource   string
	GitTag      string
	GitBranch   string
	GitHash     string
	GoBuildTime string
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ExecName returns the name of the executable
func ExecName() string {
	name, err := os.Executable()
	if err != nil {
		return "pgboss"
	}
	return filepath.Base(name)
}

// Version returns the tag, the module version from the build info, or
// "dev" when neither is available
func Version() string {
	if GitTag != "" {
		return GitTag
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// Compiler returns the go version, os and architecture
func Compiler() string {
	return runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH
}

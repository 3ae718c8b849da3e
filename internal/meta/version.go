package meta

import (
	"fmt"
	"runtime"
)

// Info describes the build context of a samaio binary, as stamped by the
// linker.
type Info struct {
	Version   string
	Build     string
	Branch    string
	BuildTime string
	Platform  string
	GoVersion string
	GoTag     string
}

// These will be filled in using the linker -X flag
var (
	// Version as an arbitrary string
	Version string

	// Build is the Git sha from when we are building
	Build string

	// Branch is the Git branch that we are building from
	Branch string

	// BuildTimeUTC is the build time in UTC (year/month/day hour:min:sec)
	BuildTimeUTC string

	// GoTag lists the build tags
	GoTag string

	platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
)

// GetInfo returns an Info struct populated with the build information.
func GetInfo() Info {
	return Info{
		GoVersion: runtime.Version(),
		Version:   Version,
		Build:     Build,
		Branch:    Branch,
		BuildTime: BuildTimeUTC,
		GoTag:     GoTag,
		Platform:  platform,
	}
}

// String renders the info for "samaio version" and the man page source.
func (i Info) String() string {
	version := i.Version
	if version == "" {
		version = "dev"
	}

	s := fmt.Sprintf("samaio %s", version)

	if i.Build != "" {
		s += fmt.Sprintf(" (%s %s)", i.Build, i.Branch)
	}

	s += fmt.Sprintf(", %s on %s", i.GoVersion, i.Platform)

	if i.BuildTime != "" {
		s += ", built " + i.BuildTime
	}

	if i.GoTag != "" {
		s += ", tags " + i.GoTag
	}

	return s
}

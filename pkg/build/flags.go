// SPDX-License-Identifier: MIT
//
// Package build exposes metadata embedded into the binary at compile time
// with linker flags:
//
//	go build -ldflags "-X pitchscope/pkg/build.buildName=pitchscope \
//	  -X pitchscope/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds run without them and report "dev" values.
package build

import (
	"errors"
	"fmt"
)

// Description is the one-line summary shown in command help.
const Description = "Spectral pitch analysis: smoothed spectrum, tracked peaks and note labels"

// Info holds build information.
type Info struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// String formats the info for --version output.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.Time)
}

// Package-level variables for build information. These are populated by
// -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultInfo()
)

func defaultInfo() Info {
	return Info{
		Name:    "pitchscope",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "dev",
	}
}

// Initialize copies the ldflags variables into the build info. Flags that
// were not set keep their development defaults and are reported in the
// returned error.
func Initialize() error {
	var errs []error
	set := func(dst *string, val, flag string) {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", flag))
			return
		}
		*dst = val
	}
	set(&buildFlags.Name, buildName, "BuildName")
	set(&buildFlags.Time, buildTime, "BuildTime")
	set(&buildFlags.Commit, buildCommit, "BuildCommit")
	set(&buildFlags.Version, buildVersion, "BuildVersion")
	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() Info {
	return buildFlags
}

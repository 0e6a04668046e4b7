// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origFlags   Info
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origFlags = buildFlags

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	buildFlags = origFlags

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  string
		want        Info
	}{
		{
			"Missing BuildName",
			"",
			"2025-04-13",
			"abcdef123",
			"v1.0.0",
			"BuildName is required",
			Info{Name: "pitchscope", Time: "2025-04-13", Commit: "abcdef123", Version: "v1.0.0"},
		},
		{
			"Missing BuildTime",
			"testapp",
			"",
			"abcdef123",
			"v1.0.0",
			"BuildTime is required",
			Info{Name: "testapp", Time: "unknown", Commit: "abcdef123", Version: "v1.0.0"},
		},
		{
			"Missing BuildCommit",
			"testapp",
			"2025-04-13",
			"",
			"v1.0.0",
			"BuildCommit is required",
			Info{Name: "testapp", Time: "2025-04-13", Commit: "unknown", Version: "v1.0.0"},
		},
		{
			"Missing BuildVersion",
			"testapp",
			"2025-04-13",
			"abcdef123",
			"",
			"BuildVersion is required",
			Info{Name: "testapp", Time: "2025-04-13", Commit: "abcdef123", Version: "dev"},
		},
		{
			"Development build",
			"",
			"",
			"",
			"",
			"BuildName is required\nBuildTime is required\nBuildCommit is required\nBuildVersion is required",
			defaultInfo(),
		},
		{
			"Success Case",
			"testapp",
			"2025-04-13",
			"abcdef123",
			"v1.0.0",
			"",
			Info{Name: "testapp", Time: "2025-04-13", Commit: "abcdef123", Version: "v1.0.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildFlags = defaultInfo()
			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if tt.wantErrMsg != "" {
				assert.EqualError(t, err, tt.wantErrMsg)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, GetBuildFlags())
		})
	}
}

func TestInfoString(t *testing.T) {
	info := Info{Name: "testapp", Time: "2025-04-13", Commit: "abcdef123", Version: "v1.0.0"}
	assert.Equal(t, "v1.0.0 (commit abcdef123, built 2025-04-13)", info.String())
}

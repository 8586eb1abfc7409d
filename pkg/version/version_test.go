package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBuildInfoDefaults(t *testing.T) {
	info := GetBuildInfo()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GitCommit)
	assert.NotEmpty(t, info.GoVersion)
	assert.Equal(t, Platform, info.Platform)
	assert.True(t, info.BuildTime.IsZero())
}

func TestGetBuildInfoParsesBuildDate(t *testing.T) {
	original := BuildDate
	t.Cleanup(func() { BuildDate = original })

	BuildDate = "2026-01-13T20:00:00Z"
	want, err := time.Parse(time.RFC3339, BuildDate)
	require.NoError(t, err)
	assert.True(t, GetBuildInfo().BuildTime.Equal(want))
}

func TestBuildInfoString(t *testing.T) {
	info := BuildInfo{Version: "v1.2.0", GitCommit: "abc123", BuildDate: "today", Platform: "linux/amd64"}
	assert.Equal(t, "dlctl v1.2.0 (commit: abc123, built: today, linux/amd64)", info.String())
}

func TestUserAgent(t *testing.T) {
	original := Version
	t.Cleanup(func() { Version = original })

	Version = "v0.4.0"
	assert.Equal(t, "dlctl/v0.4.0 ("+Platform+")", UserAgent())
}

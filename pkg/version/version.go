package version

import (
	"fmt"
	"runtime"
	"time"
)

// Set with -ldflags "-X github.com/telekom/dlctl/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Platform is the OS/Arch dlctl was compiled for.
var Platform = runtime.GOOS + "/" + runtime.GOARCH

type BuildInfo struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"gitCommit" yaml:"gitCommit"`
	BuildDate string    `json:"buildDate" yaml:"buildDate"`
	GoVersion string    `json:"goVersion" yaml:"goVersion"`
	Platform  string    `json:"platform" yaml:"platform"`
	BuildTime time.Time `json:"buildTime,omitempty" yaml:"buildTime,omitempty"`
}

func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  Platform,
	}
	if t, err := time.Parse(time.RFC3339, BuildDate); err == nil {
		info.BuildTime = t
	}
	return info
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("dlctl %s (commit: %s, built: %s, %s)", b.Version, b.GitCommit, b.BuildDate, b.Platform)
}

// UserAgent is sent with every request to the authorization server.
func UserAgent() string {
	return "dlctl/" + Version + " (" + Platform + ")"
}

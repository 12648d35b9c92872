// Build information of the policache binary. Values are injected through -ldflags at build time, e.g.
// `-X github.com/nobletooth/policache/pkg/utils.Version=v1.2.3`.
// CAUTION: TestMode is injected the same way; renaming these variables silently breaks release builds.

package utils

import (
	"log/slog"
	"strconv"
	"time"
)

// devVersion is reported by binaries built without version information; it's still a valid semantic version.
const devVersion = "v0.0.0-dev"

var (
	TestMode   string // Should be "true" when building test binaries.
	IsTestMode bool
	Version    string
	Commit     string
	BuildTime  string
	StartTime  time.Time
)

func init() {
	StartTime = time.Now()

	if Version == "" {
		Version = devVersion
	}
	if Commit == "" {
		Commit = "unknown"
	}
	if BuildTime == "" {
		BuildTime = "unknown"
	}
	if len(TestMode) > 0 {
		if isTestMode, err := strconv.ParseBool(TestMode); err == nil {
			IsTestMode = isTestMode
		} else {
			slog.Warn("Failed to parse TestMode build flag, defaulting to false.", "error", err)
		}
	}
}

// Uptime returns how long the current process has been running.
func Uptime() time.Duration {
	return time.Since(StartTime)
}

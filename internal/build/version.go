package build

import "fmt"

// Set through -ldflags "-X github.com/rohmanhakim/saas-intel/internal/build.Version=..."
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// FullVersion returns "Version+Commit", e.g. "1.0.0+abc123".
func FullVersion() string {
	return Version + "+" + Commit
}

// UserAgent is sent by every outbound request that does not impersonate a
// browser.
func UserAgent() string {
	return fmt.Sprintf("saas-intel/%s (+market-intel collector)", Version)
}

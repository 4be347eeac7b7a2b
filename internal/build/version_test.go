package build_test

import (
	"testing"

	"github.com/rohmanhakim/saas-intel/internal/build"
	"github.com/stretchr/testify/assert"
)

func withVersion(t *testing.T, version, commit string) {
	t.Helper()
	origVersion, origCommit := build.Version, build.Commit
	build.Version, build.Commit = version, commit
	t.Cleanup(func() {
		build.Version, build.Commit = origVersion, origCommit
	})
}

func TestFullVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{"default values", "dev", "none", "dev+none"},
		{"version with commit", "1.0.0", "abc123", "1.0.0+abc123"},
		{"empty commit", "1.0.0", "", "1.0.0+"},
		{"prerelease", "2.1.0-beta", "89dece58", "2.1.0-beta+89dece58"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withVersion(t, tt.version, tt.commit)
			assert.Equal(t, tt.want, build.FullVersion())
		})
	}
}

func TestUserAgent(t *testing.T) {
	withVersion(t, "1.2.3", "x")
	assert.Equal(t, "saas-intel/1.2.3 (+market-intel collector)", build.UserAgent())
}

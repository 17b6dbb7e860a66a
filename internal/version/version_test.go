package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// setBuild pins the ldflags variables for a test and restores them after.
func setBuild(t *testing.T, version, commit, tag, dirty string) {
	t.Helper()
	prevVersion, prevCommit, prevTag, prevDirty := Version, GitCommit, GitTag, GitDirty
	Version, GitCommit, GitTag, GitDirty = version, commit, tag, dirty
	t.Cleanup(func() {
		Version, GitCommit, GitTag, GitDirty = prevVersion, prevCommit, prevTag, prevDirty
	})
}

func TestTagOverridesVersion(t *testing.T) {
	setBuild(t, "1.2.3", "", "v1.3.0-rc1", "false")
	assert.Equal(t, "v1.3.0-rc1", Info())
}

func TestDirtyBuildIsMarkedOnce(t *testing.T) {
	setBuild(t, "1.2.3", "", "", "true")
	assert.Equal(t, "1.2.3-dirty", Info())

	setBuild(t, "1.2.3-dirty", "", "", "true")
	assert.Equal(t, "1.2.3-dirty", Info())
}

func TestFullAppendsShortCommit(t *testing.T) {
	setBuild(t, "1.2.3", "0123456789abcdef", "", "false")
	assert.Equal(t, "1.2.3 (0123456)", Full())

	// A version already carrying the short commit is left alone.
	setBuild(t, "1.2.3+0123456", "0123456789abcdef", "", "false")
	assert.Equal(t, "1.2.3+0123456", Full())
}

func TestGetBuildInfoPrefersLdflags(t *testing.T) {
	setBuild(t, "9.9.9", "deadbeefcafe", "", "false")
	info := GetBuildInfo()
	assert.Equal(t, "9.9.9", info.Version)
	assert.Equal(t, "deadbeefcafe", info.GitCommit)
	assert.False(t, info.GitDirty)
	assert.NotEmpty(t, info.GoVersion)
}

func TestUserAgent(t *testing.T) {
	setBuild(t, "1.2.3", "", "", "false")
	assert.True(t, strings.HasPrefix(UserAgent(), "foreman/1.2.3"))
}

package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrings(t *testing.T) {
	Version, GitCommit, BuildDate = "v1.2.0", "abc1234", "2026-01-02"
	t.Cleanup(func() { Version, GitCommit, BuildDate = "dev", "unknown", "unknown" })

	assert.Equal(t, "v1.2.0 (abc1234)", String())
	assert.Equal(t, "v1.2.0 (abc1234) built 2026-01-02 with "+runtime.Version(), Full())
	assert.Equal(t, Info{Version: "v1.2.0", GitCommit: "abc1234", BuildDate: "2026-01-02", GoVersion: runtime.Version()}, GetInfo())
}

func TestInfoLabels(t *testing.T) {
	labels := Info{Version: "v0.3.0", GitCommit: "f00d", GoVersion: "go1.24.11"}.Labels()
	assert.Equal(t, map[string]string{"version": "v0.3.0", "commit": "f00d", "go_version": "go1.24.11"}, labels)
}

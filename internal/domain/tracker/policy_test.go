package tracker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestPolicyTrackerLoadsYAMLAndTOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "10-base.yaml", `
rules:
  - package: "com.example.*"
    level: adaptive_bucket
  - package: com.example.miner
    level: restricted_bucket
`)
	writeFile(t, dir, "20-override.toml", `
[[rules]]
package = "com.example.miner"
level = "background_restricted"
users = [10]
`)

	p := NewPolicyTracker(filepath.Join(dir, "*.{yaml,toml}"), nil)
	require.NoError(t, p.Load())

	assert.Len(t, p.Rules(), 3)
	assert.Len(t, p.Files(), 2)

	// Later files override earlier ones, but only for the users they name.
	assert.Equal(t, types.LevelBackgroundRestricted, p.ProposedLevel(types.UID(10, 10050), "com.example.miner"))
	assert.Equal(t, types.LevelRestrictedBucket, p.ProposedLevel(types.UID(0, 10050), "com.example.miner"))
	assert.Equal(t, types.LevelAdaptiveBucket, p.ProposedLevel(10051, "com.example.chat"))
	assert.Equal(t, types.LevelUnknown, p.ProposedLevel(10052, "org.other.app"))
}

func TestPolicyTrackerLaterRuleCanRelax(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "10-base.yaml", `
rules:
  - package: "com.example.*"
    level: restricted_bucket
  - package: com.example.mail
    level: adaptive_bucket
`)

	p := NewPolicyTracker(filepath.Join(dir, "*.yaml"), nil)
	require.NoError(t, p.Load())

	assert.Equal(t, types.LevelAdaptiveBucket, p.ProposedLevel(10050, "com.example.mail"))
	assert.Equal(t, types.LevelRestrictedBucket, p.ProposedLevel(10051, "com.example.game"))
}

func TestPolicyTrackerEmptyGlob(t *testing.T) {
	p := NewPolicyTracker("", nil)
	require.NoError(t, p.Load())
	assert.Equal(t, types.LevelUnknown, p.ProposedLevel(10050, "com.example.app"))
}

func TestPolicyTrackerInvalidFileKeepsRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "rules:\n  - package: com.example.app\n    level: restricted_bucket\n")

	p := NewPolicyTracker(filepath.Join(dir, "*.yaml"), nil)
	require.NoError(t, p.Load())

	writeFile(t, dir, "b.yaml", "rules:\n  - package: com.example.app\n    level: sometimes\n")
	assert.Error(t, p.Load())
	assert.Equal(t, types.LevelRestrictedBucket, p.ProposedLevel(10050, "com.example.app"))
}

func TestPolicyTrackerRejectsUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"rules": []}`)

	p := NewPolicyTracker(filepath.Join(dir, "*"), nil)
	assert.Error(t, p.Load())
}

func TestPolicyTrackerReloadsOnProperty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	writeFile(t, dir, "policy.yaml", "rules:\n  - package: com.example.app\n    level: adaptive_bucket\n")

	p := NewPolicyTracker(path, nil)
	reloads := 0
	p.OnReload(func() { reloads++ })
	p.OnSystemReady()
	assert.Equal(t, 1, reloads)
	assert.Equal(t, types.LevelAdaptiveBucket, p.ProposedLevel(10050, "com.example.app"))

	writeFile(t, dir, "policy.yaml", "rules:\n  - package: com.example.app\n    level: restricted_bucket\n")

	p.OnPropertiesChanged("bg_unrelated")
	assert.Equal(t, 1, reloads)
	assert.Equal(t, types.LevelAdaptiveBucket, p.ProposedLevel(10050, "com.example.app"))

	p.OnPropertiesChanged(PolicyProperty)
	assert.Equal(t, 2, reloads)
	assert.Equal(t, types.LevelRestrictedBucket, p.ProposedLevel(10050, "com.example.app"))
}

package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
users: [0, 10]
packages:
  - name: com.example.mail
    app_id: 10050
    users: [0, 10]
    bucket: working_set
  - name: com.example.game
    bucket: rare
    hibernating: true
  - name: com.example.tracker
    bucket: frequent
    background_restricted: true
properties:
  bg_policy: /etc/bgrestrict/policy.yaml
`

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10}, m.Users)
	require.Len(t, m.Packages, 3)
	assert.Equal(t, PackageSpec{
		Name:   "com.example.mail",
		AppID:  10050,
		Users:  []int{0, 10},
		Bucket: "working_set",
	}, m.Packages[0])
	assert.Equal(t, "/etc/bgrestrict/policy.yaml", m.Properties["bg_policy"])

	_, err = LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestManifestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", "packages:\n  - bucket: rare\n"},
		{"duplicate", "packages:\n  - name: a\n  - name: a\n"},
		{"bad bucket", "packages:\n  - name: a\n    bucket: sometimes\n"},
		{"app id out of range", "packages:\n  - name: a\n    app_id: 100000\n"},
		{"not yaml", "packages: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSeed(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)

	d, rec := newAttached(t)
	require.NoError(t, d.Seed(m))
	assert.Empty(t, rec.take())

	assert.Equal(t, []int{0, 10}, d.UserIDs())

	mail, err := d.Package("com.example.mail", 10)
	require.NoError(t, err)
	assert.Equal(t, types.UID(10, 10050), mail.UID)
	assert.Equal(t, types.BucketWorkingSet, mail.Bucket)

	game, err := d.Package("com.example.game", 0)
	require.NoError(t, err)
	assert.True(t, game.Hibernating)
	assert.Equal(t, 10051, game.UID)

	tracker, err := d.Package("com.example.tracker", 0)
	require.NoError(t, err)
	assert.True(t, d.IsBackgroundRestricted(tracker.UID, "com.example.tracker"))

	v, ok := d.Property("bg_policy")
	assert.True(t, ok)
	assert.Equal(t, "/etc/bgrestrict/policy.yaml", v)
}

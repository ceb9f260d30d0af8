package tracker

import (
	"testing"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedTracker struct {
	Base
	name  string
	level types.RestrictionLevel
	calls *[]string
}

func (f *fixedTracker) Name() string { return f.name }

func (f *fixedTracker) ProposedLevel(int, string) types.RestrictionLevel { return f.level }

func (f *fixedTracker) OnUidAdded(uid int) {
	if f.calls != nil {
		*f.calls = append(*f.calls, f.name)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r, err := NewRegistry(&fixedTracker{name: "battery"})
	require.NoError(t, err)

	err = r.Register(&fixedTracker{name: "battery"})
	assert.ErrorIs(t, err, ErrDuplicateTracker)
	assert.Equal(t, 1, r.Len())

	assert.Error(t, r.Register(&fixedTracker{}))
}

func TestRegistryProposedIsMaximum(t *testing.T) {
	tests := []struct {
		name     string
		levels   []types.RestrictionLevel
		expected types.RestrictionLevel
	}{
		{name: "no trackers", levels: nil, expected: types.LevelUnknown},
		{name: "all unknown", levels: []types.RestrictionLevel{types.LevelUnknown, types.LevelUnknown}, expected: types.LevelUnknown},
		{name: "single", levels: []types.RestrictionLevel{types.LevelAdaptiveBucket}, expected: types.LevelAdaptiveBucket},
		{
			name:     "one firing tracker is enough",
			levels:   []types.RestrictionLevel{types.LevelExempted, types.LevelAdaptiveBucket, types.LevelBackgroundRestricted},
			expected: types.LevelBackgroundRestricted,
		},
		{
			name:     "order does not matter",
			levels:   []types.RestrictionLevel{types.LevelRestrictedBucket, types.LevelExempted},
			expected: types.LevelRestrictedBucket,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Registry{}
			for i, l := range tt.levels {
				require.NoError(t, r.Register(&fixedTracker{name: string(rune('a' + i)), level: l}))
			}
			assert.Equal(t, tt.expected, r.Proposed(10123, "com.example.app"))
		})
	}
}

func TestRegistryHooksRunInRegistrationOrder(t *testing.T) {
	var calls []string
	r, err := NewRegistry(
		&fixedTracker{name: "first", calls: &calls},
		&fixedTracker{name: "second", calls: &calls},
		&fixedTracker{name: "third", calls: &calls},
	)
	require.NoError(t, err)

	r.OnUidAdded(10123)

	assert.Equal(t, []string{"first", "second", "third"}, calls)
	assert.Equal(t, []string{"first", "second", "third"}, r.Names())
}

func TestRegistryGet(t *testing.T) {
	r, err := NewRegistry(&fixedTracker{name: "battery"})
	require.NoError(t, err)

	tr, ok := r.Get("battery")
	require.True(t, ok)
	assert.Equal(t, "battery", tr.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

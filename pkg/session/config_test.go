package session

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarningMinutes(t *testing.T) {
	tests := []struct {
		name    string
		timeout float64
		want    float64
	}{
		{"half minute", 0.5, 10.0 / 60.0},
		{"exactly one minute", 1, 10.0 / 60.0},
		{"ninety seconds", 1.5, 0.5},
		{"exactly two minutes", 2, 0.5},
		{"five minutes", 5, 1.5},
		{"seven minutes caps at two", 7, 2},
		{"one hour caps at two", 60, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, WarningMinutes(tt.timeout), 1e-9)
		})
	}
}

func TestConfig_Merge(t *testing.T) {
	base := DefaultConfig()

	t.Run("empty patch keeps values", func(t *testing.T) {
		merged, err := base.Merge(ConfigPatch{})
		require.NoError(t, err)
		assert.Equal(t, base.TimeoutMinutes, merged.TimeoutMinutes)
		assert.Equal(t, base.ExtendOnActivity, merged.ExtendOnActivity)
		assert.Equal(t, base.LockOnBackground, merged.LockOnBackground)
	})

	t.Run("timeout patch recomputes warning", func(t *testing.T) {
		timeout := 60.0
		merged, err := base.Merge(ConfigPatch{TimeoutMinutes: &timeout})
		require.NoError(t, err)
		assert.InDelta(t, 60.0, merged.TimeoutMinutes, 1e-9)
		assert.InDelta(t, 2.0, merged.WarningMinutes, 1e-9)
	})

	t.Run("bool patches", func(t *testing.T) {
		f := false
		merged, err := base.Merge(ConfigPatch{ExtendOnActivity: &f, LockOnBackground: &f})
		require.NoError(t, err)
		assert.False(t, merged.ExtendOnActivity)
		assert.False(t, merged.LockOnBackground)
	})

	t.Run("zero timeout rejected", func(t *testing.T) {
		timeout := 0.0
		_, err := base.Merge(ConfigPatch{TimeoutMinutes: &timeout})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("negative timeout rejected", func(t *testing.T) {
		timeout := -5.0
		_, err := base.Merge(ConfigPatch{TimeoutMinutes: &timeout})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("non-finite timeout rejected", func(t *testing.T) {
		for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			v := bad
			_, err := base.Merge(ConfigPatch{TimeoutMinutes: &v})
			assert.ErrorIs(t, err, ErrInvalidConfig)
		}
	})

	t.Run("receiver unchanged", func(t *testing.T) {
		timeout := 42.0
		_, err := base.Merge(ConfigPatch{TimeoutMinutes: &timeout})
		require.NoError(t, err)
		assert.InDelta(t, DefaultConfig().TimeoutMinutes, base.TimeoutMinutes, 1e-9)
	})
}

func TestDefaultConfig_WarningInvariant(t *testing.T) {
	cfg := DefaultConfig()
	assert.LessOrEqual(t, cfg.WarningMinutes, cfg.TimeoutMinutes)
	assert.InDelta(t, WarningMinutes(cfg.TimeoutMinutes), cfg.WarningMinutes, 1e-9)
}

package featureflag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatureFlag(t *testing.T) {
	f := New([]string{string(FlagValidateTrees), "", string(FlagInlineJobs)})

	t.Run("run if enabled", func(t *testing.T) {
		var validate bool
		f.IfSet(FlagValidateTrees, func() {
			validate = true
		})
		require.True(t, validate)

		var disableRebalance bool
		f.IfSet(FlagDisableRebalance, func() {
			disableRebalance = true
		})
		require.False(t, disableRebalance)
	})

	t.Run("run if disabled", func(t *testing.T) {
		var validate bool
		f.IfNotSet(FlagValidateTrees, func() {
			validate = true
		})
		require.False(t, validate)

		var rebalance bool
		f.IfNotSet(FlagDisableRebalance, func() {
			rebalance = true
		})
		require.True(t, rebalance)
	})

	t.Run("enabled flags are listed", func(t *testing.T) {
		require.True(t, f.IsSet(FlagInlineJobs))
		require.False(t, f.IsSet(""))
		require.Equal(t, []string{"INLINE_JOBS", "VALIDATE_TREES"}, f.Flags())
	})
}

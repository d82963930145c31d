package subscription_test

import (
	"testing"

	"github.com/schoolplane/platform/business/types/subscription"
	"github.com/stretchr/testify/require"
)

func Test_Parse(t *testing.T) {
	statuses := map[string]subscription.Status{
		"trial":     subscription.Trial,
		"active":    subscription.Active,
		"grace":     subscription.Grace,
		"locked":    subscription.Locked,
		"suspended": subscription.Suspended,
		"churned":   subscription.Churned,
	}

	for value, want := range statuses {
		t.Run(value, func(t *testing.T) {
			s, err := subscription.Parse(value)
			require.NoError(t, err)
			require.True(t, s.Equal(want))
			require.Equal(t, value, s.String())
		})
	}

	_, err := subscription.Parse("cancelled")
	require.Error(t, err)

	_, err = subscription.Parse("")
	require.Error(t, err)
}

func Test_Terminal(t *testing.T) {
	require.True(t, subscription.Suspended.Terminal())
	require.True(t, subscription.Churned.Terminal())

	for _, s := range []subscription.Status{subscription.Trial, subscription.Active, subscription.Grace, subscription.Locked} {
		require.False(t, s.Terminal(), s.String())
	}
}

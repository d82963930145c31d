package descriptor_test

import (
	"testing"

	"github.com/schoolplane/platform/business/types/descriptor"
	"github.com/stretchr/testify/require"
)

func Test_Parse(t *testing.T) {
	t.Run("shared", func(t *testing.T) {
		d, err := descriptor.Parse("shared")
		require.NoError(t, err)
		require.True(t, d.Mode().Equal(descriptor.ModeShared))
		require.Equal(t, "shared", d.String())
	})

	t.Run("dedicated", func(t *testing.T) {
		url := "postgresql://app:pw@db.internal:5432/acme"

		d, err := descriptor.Parse(url)
		require.NoError(t, err)
		require.True(t, d.Mode().Equal(descriptor.ModeDedicated))
		require.Equal(t, url, d.URL())
		require.Equal(t, url, d.String())
	})

	t.Run("shared-schema", func(t *testing.T) {
		d, err := descriptor.Parse("shared-schema:tenant_acme")
		require.NoError(t, err)
		require.True(t, d.Mode().Equal(descriptor.ModeSharedSchema))
		require.Equal(t, "tenant_acme", d.Schema())
		require.Equal(t, "shared-schema:tenant_acme", d.String())
	})
}

func Test_Parse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"unknown marker", "mysql://app:pw@db/acme"},
		{"bad schema uppercase", "shared-schema:Tenant"},
		{"bad schema leading digit", "shared-schema:1tenant"},
		{"bad schema empty", "shared-schema:"},
		{"shared with suffix", "shared-extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := descriptor.Parse(tt.value)
			require.Error(t, err)
		})
	}
}

func Test_Parse_RedactsCredentials(t *testing.T) {
	_, err := descriptor.Parse("mysql://app:supersecret@db/acme")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "supersecret")
}

func Test_RoundTrip(t *testing.T) {
	values := []string{
		"shared",
		"shared-schema:tenant_acme",
		"postgresql://app:pw@db.internal:5432/acme",
	}

	for _, value := range values {
		d := descriptor.MustParse(value)
		require.True(t, d.Equal(descriptor.MustParse(d.String())))
	}
}

package subdomain_test

import (
	"testing"

	"github.com/schoolplane/platform/business/types/subdomain"
	"github.com/stretchr/testify/require"
)

func Test_Parse(t *testing.T) {
	valid := []string{
		"acme",
		"acme-school",
		"a",
		"school42",
		"42school",
	}

	for _, value := range valid {
		t.Run(value, func(t *testing.T) {
			s, err := subdomain.Parse(value)
			require.NoError(t, err)
			require.Equal(t, value, s.String())
		})
	}
}

func Test_Parse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"uppercase", "Acme"},
		{"leading hyphen", "-acme"},
		{"trailing hyphen", "acme-"},
		{"dot", "acme.school"},
		{"underscore", "acme_school"},
		{"too long", "a-very-long-subdomain-label-that-exceeds-the-sixty-three-character-limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := subdomain.Parse(tt.value)
			require.Error(t, err)
		})
	}
}

func Test_Parse_Reserved(t *testing.T) {
	for _, value := range []string{"www", "api", "admin"} {
		t.Run(value, func(t *testing.T) {
			_, err := subdomain.Parse(value)
			require.Error(t, err)
			require.True(t, subdomain.Reserved(value))
		})
	}

	require.False(t, subdomain.Reserved("acme"))
}

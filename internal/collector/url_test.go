package collector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases host", "https://Example.COM/Path", "https://example.com/Path"},
		{"strips default https port", "https://example.com:443/a", "https://example.com/a"},
		{"strips default http port", "http://example.com:80/a", "http://example.com/a"},
		{"drops fragment", "https://example.com/a#section", "https://example.com/a"},
		{"sorts query params", "https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestOrigin(t *testing.T) {
	require.Equal(t, "example.com", Origin("https://Example.com/page?x=1"))
	require.Equal(t, "a.example.com:8080", Origin("http://a.example.com:8080/"))
	require.Equal(t, "", Origin("://bad"))
}

func TestIsLoginPage(t *testing.T) {
	require.True(t, IsLoginPage("https://shop.example.com/checkout/step1"))
	require.True(t, IsLoginPage("https://example.com/Login"))
	require.False(t, IsLoginPage("https://example.com/blog/post"))
}

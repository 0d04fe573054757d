package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainsToHTTPSAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		domains  []string
		expected string
	}{
		{
			name:     "single domain",
			domains:  []string{"example.com"},
			expected: "https://example.com",
		},
		{
			name:     "multiple domains",
			domains:  []string{"example.com", "www.example.com"},
			expected: "https://example.com, https://www.example.com",
		},
		{
			name:     "no domains",
			domains:  []string{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := domainsToHTTPSAddress(tt.domains)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestServerAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		server   Server
		expected string
	}{
		{
			name:     "default port",
			server:   Server{},
			expected: ":8080",
		},
		{
			name:     "host and port",
			server:   Server{Host: "127.0.0.1", Port: "9000"},
			expected: "127.0.0.1:9000",
		},
		{
			name:     "ipv6 host",
			server:   Server{Host: "::1", Port: "9000"},
			expected: "[::1]:9000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, tt.server.address())
		})
	}
}

func TestServeFuncRejectsInvalidTLS(t *testing.T) {
	t.Parallel()

	t.Run("unknown mode", func(t *testing.T) {
		t.Parallel()

		s := &Server{TLS: ServerTLS{Enabled: true, Mode: "magic"}}

		_, err := s.serveFunc(context.Background(), nil)
		require.Error(t, err)

		unknownModeErr := &UnknownTLSModeError{}
		require.ErrorAs(t, err, &unknownModeErr)
		assert.Equal(t, "magic", unknownModeErr.Mode)
	})

	t.Run("autocert without domains", func(t *testing.T) {
		t.Parallel()

		s := &Server{TLS: ServerTLS{Enabled: true, Mode: TLSModeAutoCert, AutoCert: &ServerTLSAutoCert{}}}

		_, err := s.serveFunc(context.Background(), nil)
		require.Error(t, err)
	})
}

package cmd

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseCmd_Logger(t *testing.T) {
	t.Run("falls back to a default logger", func(t *testing.T) {
		c := &BaseCmd{}
		logger := c.Logger()
		require.NotNil(t, logger)

		// Subsequent calls reuse the same logger.
		assert.Equal(t, logger, c.Logger())
	})

	t.Run("uses an injected logger", func(t *testing.T) {
		c := &BaseCmd{}
		injected := hclog.NewNullLogger()
		c.SetLogger(injected)

		assert.Equal(t, injected, c.Logger())
	})
}

func TestBaseCmd_CreateAPIClient(t *testing.T) {
	c := &BaseCmd{}
	c.SetLogger(hclog.NewNullLogger())

	t.Run("requires a server URL", func(t *testing.T) {
		_, err := c.CreateAPIClient("   ", true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no review server URL configured")
	})

	t.Run("builds a client with caching disabled", func(t *testing.T) {
		client, err := c.CreateAPIClient("https://reviews.example.com", true)
		require.NoError(t, err)
		require.NotNil(t, client)
		assert.Equal(t, "https://reviews.example.com/", client.BaseURL())
	})
}

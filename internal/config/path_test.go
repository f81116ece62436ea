package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	t.Setenv("LEDGERSYNC_TEST_DIR", "/var/data")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain path", "/tmp/ledger.db", "/tmp/ledger.db"},
		{"bare tilde", "~", home},
		{"tilde prefix", "~/ledger.db", filepath.Join(home, "ledger.db")},
		{"env var", "$LEDGERSYNC_TEST_DIR/ledger.db", "/var/data/ledger.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.input))
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    *ClientConfig
		wantErr bool
	}{
		{
			name: "valid",
			data: "stateStreamUrl: ws://127.0.0.1:8546\nchainId: 1337\n",
			want: &ClientConfig{StateStreamURL: "ws://127.0.0.1:8546", ChainID: 1337},
		},
		{
			name:    "missing url",
			data:    "chainId: 1\n",
			wantErr: true,
		},
		{
			name:    "not a url",
			data:    "stateStreamUrl: localhost\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "client.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0o600))

			cfg, err := LoadConfig(path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestLoadConfig_Sample(t *testing.T) {
	cfg, err := LoadConfig("../config.yaml")
	require.NoError(t, err)
	assert.Equal(t, uint64(1337), cfg.ChainID)
}

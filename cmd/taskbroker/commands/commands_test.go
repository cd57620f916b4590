package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/taskbroker/internal/model"
)

func TestParseStatuses(t *testing.T) {
	tests := map[string]struct {
		value  string
		exp    []model.TaskStatus
		expErr bool
	}{
		"Empty should not filter.": {},
		"Comma separated statuses should parse.": {
			value: "created, IN_PROGRESS,,disputed",
			exp:   []model.TaskStatus{model.TaskStatusCreated, model.TaskStatusInProgress, model.TaskStatusDisputed},
		},
		"Unknown statuses should fail.": {
			value:  "created,lost",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := parseStatuses(test.value)

			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.exp, got)
		})
	}
}

func TestRootCommandPlatformConfig(t *testing.T) {
	tests := map[string]struct {
		config string
		exp    func() model.PlatformConfig
		expErr bool
	}{
		"Without config file the defaults should be used.": {
			exp: model.DefaultPlatformConfig,
		},
		"The config file should override the defaults.": {
			config: "commission_rate: 0.2\ndispute_timeout: 48h\n",
			exp: func() model.PlatformConfig {
				cfg := model.DefaultPlatformConfig()
				cfg.CommissionRate = 2000
				cfg.DisputeTimeout = 48 * time.Hour
				return cfg
			},
		},
		"An invalid config file should fail.": {
			config: "commission_rate: 3\n",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			root := RootCommand{}
			if test.config != "" {
				root.ConfigPath = filepath.Join(t.TempDir(), "platform.yaml")
				require.NoError(t, os.WriteFile(root.ConfigPath, []byte(test.config), 0o600))
			}

			got, err := root.PlatformConfig(context.Background())

			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.exp(), got)
		})
	}
}

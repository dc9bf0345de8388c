package config

import (
	"os"

	"github.com/pseudomuto/changedeploy/pkg/consts"
	"go.uber.org/fx"
)

var Module = fx.Module("config", fx.Provide(
	// Loads changedeploy.yaml when present. Returns nil otherwise so commands
	// that don't need a config (help, version) still work; the rest guard with
	// requireConfig.
	func() (*Config, error) {
		if _, err := os.Stat(consts.ConfigFile); os.IsNotExist(err) {
			return nil, nil
		}

		return LoadConfigFile(consts.ConfigFile)
	},
))

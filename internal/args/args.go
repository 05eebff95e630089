package args

import (
	"github.com/spf13/pflag"
)

var (
	configFilePath string
	production     bool
)

// Bind registers the global flags on the given flag set.
func Bind(flags *pflag.FlagSet) {
	flags.StringVar(&configFilePath, "config", "", "path to a yaml config file")
	flags.BoolVar(&production, "production", false, "run with production defaults and logging")
}

func ConfigFilePath() string {
	return configFilePath
}

func IsProduction() bool {
	return production
}

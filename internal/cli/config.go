package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configFileName = "pmsync"
	configFileType = "yaml"
	envPrefix      = "PMSYNC"

	cfgKeyFormat   = "format"
	cfgKeyVerbose  = "verbose"
	cfgKeyLogLevel = "log_level"
	cfgKeyJournal  = "journal"
	cfgKeySchema   = "schema"

	defaultFormat   = "text"
	defaultLogLevel = "warn"
)

// flagKeys maps persistent flag names to config keys.
var flagKeys = map[string]string{
	"format":    cfgKeyFormat,
	"verbose":   cfgKeyVerbose,
	"log-level": cfgKeyLogLevel,
	"journal":   cfgKeyJournal,
	"schema":    cfgKeySchema,
}

// loadConfig layers flags over PMSYNC_* environment variables over the
// config file over defaults.
//
// Without an explicit path, pmsync.yaml is looked up in the working
// directory and a missing file is not an error. An explicit path must exist.
func loadConfig(path string, cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyFormat, defaultFormat)
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

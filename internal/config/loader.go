package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".rxbench"

// configType is the config file format.
const configType = "yaml"

// EnvPrefix prefixes every environment override, e.g. RXBENCH_UNIT_TIMEOUT.
const EnvPrefix = "RXBENCH"

// ApplyLayers fills every flag in fs that was not set explicitly from, in
// increasing precedence, the config file and RXBENCH_* environment
// variables. Config file keys are flag names ("unit-timeout: 10m").
//
// If configPath is empty, .rxbench.yaml is searched in CWD and $HOME and a
// missing file is not an error. skip names flags that must not be layered.
func ApplyLayers(fs *pflag.FlagSet, configPath string, skip ...string) error {
	v := viper.New()
	v.SetConfigType(configType)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || skipped[f.Name] || !v.IsSet(f.Name) {
			return
		}
		var vals []string
		switch f.Value.Type() {
		case "stringSlice":
			vals = []string{strings.Join(v.GetStringSlice(f.Name), ",")}
		case "stringArray":
			// The first Set replaces the default, later ones append.
			vals = v.GetStringSlice(f.Name)
		default:
			vals = []string{v.GetString(f.Name)}
		}
		for _, val := range vals {
			if err := fs.Set(f.Name, val); err != nil {
				errs = append(errs, fmt.Errorf("config %s: %w", f.Name, err))
				return
			}
		}
	})
	return errors.Join(errs...)
}

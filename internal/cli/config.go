// Package cli provides helpers shared by the service command line: configuration discovery and log verbosity.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ConfigFlag is the name of the flag pointing at an explicit configuration file.
const ConfigFlag = "config"

// InitViperConfig loads the configuration file for cmdName into vip and binds prefixed environment variables.
//
// An explicit --config file must exist. Without it, the working directory, /etc/<cmdName> and the binary
// directory are searched and a missing file is not an error.
func InitViperConfig(cmdName string, cmd *cobra.Command, vip *viper.Viper) error {
	if v, err := cmd.Flags().GetString(ConfigFlag); err == nil && v != "" {
		vip.SetConfigFile(v)
	} else {
		vip.SetConfigName(cmdName)
		vip.AddConfigPath(".")
		vip.AddConfigPath(filepath.Join("/etc", cmdName))

		if binPath, err := os.Executable(); err != nil {
			slog.Warn("Failed to get current executable path, not adding it as a config dir", "err", err)
		} else {
			vip.AddConfigPath(filepath.Dir(binPath))
		}
	}

	if err := vip.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if !errors.As(err, &e) {
			return fmt.Errorf("invalid configuration file: %w", err)
		}
		slog.Info("No configuration file, using defaults, environment and flags only", "err", e)
	} else {
		slog.Info("Using configuration file", "file", vip.ConfigFileUsed())
	}

	return bindPrefixedEnv(cmdName, vip)
}

// bindPrefixedEnv binds every CMD_NAME_SECTION_KEY variable to section.key so that Unmarshal sees them.
// AutomaticEnv alone only applies to keys viper already knows about.
func bindPrefixedEnv(cmdName string, vip *viper.Viper) error {
	vip.SetEnvPrefix(cmdName)
	vip.AutomaticEnv()

	prefix := EnvPrefix(cmdName)
	for _, e := range os.Environ() {
		name, _, ok := strings.Cut(e, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}

		k := strings.ReplaceAll(strings.TrimPrefix(name, prefix), "_", ".")
		if err := vip.BindEnv(k, name); err != nil {
			return fmt.Errorf("could not bind environment variable %s: %w", name, err)
		}
	}

	return nil
}

// EnvPrefix returns the environment variable prefix used for cmdName, including the trailing underscore.
func EnvPrefix(cmdName string) string {
	return strings.ToUpper(strings.ReplaceAll(cmdName, "-", "_")) + "_"
}

// InstallConfigFlag adds the persistent config flag to the command.
func InstallConfigFlag(cmd *cobra.Command) *string {
	return cmd.PersistentFlags().String(ConfigFlag, "", "use a specific configuration file")
}

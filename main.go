package main

import (
	"context"
	"errors"
	"os"
	"path"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robgonnella/hashwatch/cli/commands"
	app_info "github.com/robgonnella/hashwatch/internal/app-info"
	"github.com/robgonnella/hashwatch/internal/config"
	"github.com/robgonnella/hashwatch/internal/logger"
	"github.com/spf13/viper"
)

/**
 * Main entry point for all commands
 * Here we setup environment config via viper
 */

func setRunTimeConfig() error {
	userHomeDir, err := os.UserHomeDir()

	if err != nil {
		return err
	}

	configDir := path.Join(userHomeDir, ".config", app_info.NAME)

	if err := os.MkdirAll(configDir, 0755); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}

	userCacheDir, err := os.UserCacheDir()

	if err != nil {
		return err
	}

	cacheDir := path.Join(userCacheDir, app_info.NAME)

	if err := os.MkdirAll(cacheDir, 0755); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}

	// HASHWATCH_CONFIG_FILE, HASHWATCH_DATABASE_FILE etc. take precedence
	viper.SetEnvPrefix(app_info.NAME)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// share location of files and directories globally using viper
	viper.SetDefault("config-dir", configDir)
	viper.SetDefault("config-file", path.Join(configDir, app_info.NAME+".yml"))
	viper.SetDefault("log-file", path.Join(configDir, app_info.NAME+".log"))
	viper.SetDefault("cache-dir", cacheDir)
	viper.SetDefault("database-file", path.Join(cacheDir, app_info.NAME+".db"))

	return nil
}

// Entry point for the cli
func main() {
	log := logger.New()

	// a missing .env is fine
	_ = godotenv.Load()

	if err := setRunTimeConfig(); err != nil {
		log.Fatal().Err(err).Msg("")
	}

	configService := config.NewConfigService(
		config.NewYAMLRepo(viper.GetString("config-file")),
	)

	// Get the "root" cobra cli command
	cmd := commands.Root(&commands.CommandProps{
		Config: configService,
	})

	// Allows "grepping" of command output
	cmd.SetOut(os.Stdout)

	// execute the cobra command and exit with error code if necessary
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

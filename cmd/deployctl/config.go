package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/akoyago/deployctl/pkg/store"
	"github.com/akoyago/deployctl/pkg/store/dataverse"
	"github.com/akoyago/deployctl/pkg/store/local"
)

// environmentConfig is one named environment profile.
type environmentConfig struct {
	// URL is the organization URL of a live environment.
	URL          string `mapstructure:"url"`
	TenantID     string `mapstructure:"tenantId"`
	ClientID     string `mapstructure:"clientId"`
	ClientSecret string `mapstructure:"clientSecret"`
	// Sandbox, when set, points at a local SQLite database used instead of
	// a live environment. Useful for rehearsing a sync in CI.
	Sandbox string `mapstructure:"sandbox"`
}

type config struct {
	Environments map[string]environmentConfig `mapstructure:"environments"`
}

// loadConfig reads deployctl.yaml (or the --config override) with DEPLOYCTL_*
// environment variable overrides.
func loadConfig() (*config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("deployctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.deployctl")
	}
	v.SetEnvPrefix("DEPLOYCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// resolveEnvironment returns the profile selected by --env.
func resolveEnvironment() (*environmentConfig, error) {
	if envName == "" {
		return nil, fmt.Errorf("--env is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	env, ok := cfg.Environments[envName]
	if !ok {
		names := make([]string, 0, len(cfg.Environments))
		for name := range cfg.Environments {
			names = append(names, name)
		}
		return nil, fmt.Errorf("environment %q not found in config (have: %s)",
			envName, strings.Join(names, ", "))
	}
	return &env, nil
}

// openStore opens the record store for the selected environment: a local
// sandbox database when the profile configures one, otherwise the live
// Dataverse environment.
func openStore() (store.RecordStore, error) {
	env, err := resolveEnvironment()
	if err != nil {
		return nil, err
	}
	if env.Sandbox != "" {
		return local.Open(env.Sandbox)
	}
	return dataverse.NewClient(dataverse.Config{
		URL:          env.URL,
		TenantID:     env.TenantID,
		ClientID:     env.ClientID,
		ClientSecret: env.ClientSecret,
	})
}

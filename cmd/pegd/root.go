package main

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvReplacer replaces `-` to `_`.
// This is used to map flag like `--admin-token` to environment variables like `ADMIN_TOKEN`.
var envReplacer = strings.NewReplacer("-", "_")

func init() {
	viper.SetEnvPrefix("PEGD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(envReplacer)
}

package config

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

var (
	// AllowFlags defines processing the cli arguments in GetConfig
	// commands with own flag sets turn it off and call BindFlags
	AllowFlags = true
	// EnvPrefix defines name prefix for environment variables
	// with struct-path selector and value, for example:
	//    UNIT_LOG_CONDENSE="1m 30s"
	//    UNIT_JOBS_0_DELAY=500ms
	EnvPrefix = "UNIT_"
	// ConfigEnv defines environment variable for config file path, overrides the ConfigName
	ConfigEnv = "UNIT_CONFIG"
	// ConfigName defines default filename for look in work directory if ConfigEnv is empty
	ConfigName = "unit_config.yaml"
)

// BindFlags adds config flags into flag set
func BindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&EnvPrefix, "env-prefix", EnvPrefix,
		`prefix for environment variables`)
	flags.StringVar(&ConfigEnv, "config-env", ConfigEnv,
		`environment variable for config file path`)
}

// NormalizeEnv applies EnvPrefix to ConfigEnv
func NormalizeEnv() {
	ConfigEnv = strings.TrimPrefix(ConfigEnv, "UNIT_")
	ConfigEnv = strings.TrimPrefix(ConfigEnv, EnvPrefix)
	ConfigEnv = EnvPrefix + ConfigEnv
}

func applyFlags() {
	if !AllowFlags {
		return
	}
	/* GetConfig could be called in tests init
	and std flag doesn't support it, using github.com/spf13/pflag instead */
	flags := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	BindFlags(flags)
	_ = flags.Parse(os.Args[1:])
	NormalizeEnv()
}

func applyEnv(v ...interface{}) error {
	var ee []error
	for i := range v {
		if err := env.ParseWithOptions(v[i], env.Options{Prefix: EnvPrefix}); err != nil {
			ee = append(ee, err)
		}
	}
	if len(ee) > 0 {
		return errors.Join(ee...)
	}
	return nil
}

package main

import (
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "KUSARI"

// Config is what a single invocation needs, merged from flags, KUSARI_*
// environment variables, an optional .env file and an optional config file,
// in that order of precedence.
type Config struct {
	Method  string   `mapstructure:"method" validate:"required,printascii"`
	Headers []string `mapstructure:"header" validate:"dive,contains=:"`
	Data    string   `mapstructure:"data"`

	CAFile         string        `mapstructure:"ca-file" validate:"omitempty,file"`
	KeyLogFile     string        `mapstructure:"keylogfile"`
	MaxHeaderBytes uint          `mapstructure:"max-header-bytes" validate:"gte=1024,lte=16777216"`
	ConnectTimeout time.Duration `mapstructure:"connect-timeout" validate:"gte=0"`

	Include bool `mapstructure:"include"`
	Verbose bool `mapstructure:"verbose"`
}

func registerFlags(flags *pflag.FlagSet) {
	flags.StringP("method", "X", "GET", "Request method")
	flags.StringArrayP("header", "H", nil, "Request header as 'Name: Value', can be repeated")
	flags.StringP("data", "d", "", "Request body")
	flags.String("ca-file", "", "PEM bundle of trusted roots instead of the system pool")
	flags.Uint("max-header-bytes", 64<<10, "Largest response head accepted")
	flags.Duration("connect-timeout", 30*time.Second, "Bound on dial and handshake, 0 for none")
	flags.BoolP("include", "i", false, "Print the status line and headers")
	flags.BoolP("verbose", "v", false, "Log what happens on the wire to stderr")
	flags.String("config", "", "Config file (yaml, toml or json)")
	flags.String("env-file", ".env", "Env file loaded before reading KUSARI_* variables")
}

func loadConfig(flags *pflag.FlagSet) (Config, error) {
	envFile, _ := flags.GetString("env-file")
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			// Variables already set in the environment win.
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, errors.Wrapf(err, "loading %s", envFile)
			}
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Same variable curl and browsers read.
	if err := v.BindEnv("keylogfile", "SSLKEYLOGFILE"); err != nil {
		return Config{}, errors.Wrap(err, "binding SSLKEYLOGFILE")
	}

	if err := v.BindPFlags(flags); err != nil {
		return Config{}, errors.Wrap(err, "binding flags")
	}

	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateConfig(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validating config")
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, e.Namespace()+": failed on '"+e.Tag()+"'")
	}
	return errors.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	stdlog "log"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	"github.com/gwos/unit/duration"
	"github.com/gwos/unit/logzer"
	"github.com/gwos/unit/schedule"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"
)

var (
	once sync.Once
	cfg  *Config

	ErrConfig = fmt.Errorf("config error")
)

// LogLevel defines levels in logrus-style
type LogLevel int

// Enum levels
const (
	Error LogLevel = iota
	Warn
	Info
	Debug
	Trace
)

func (l LogLevel) String() string {
	if l < Error || l > Trace {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return [...]string{"Error", "Warn", "Info", "Debug", "Trace"}[l]
}

// Log defines logging configuration
type Log struct {
	// Condense accepts duration for condensing similar records
	// if 0 turn off condensing
	Condense duration.Duration `env:"CONDENSE" yaml:"condense"`
	// File accepts file path to log in addition to stdout
	File        string `env:"FILE" yaml:"file"`
	FileMaxSize int64  `env:"FILEMAXSIZE" yaml:"fileMaxSize"`
	// Log files are rotated count times before being removed.
	// If count is 0, old versions are removed rather than rotated.
	FileRotate int      `env:"FILEROTATE" yaml:"fileRotate"`
	Level      LogLevel `env:"LEVEL" yaml:"level"`
	Colors     bool     `env:"COLORS" yaml:"colors"`
	TimeFormat string   `env:"TIMEFORMAT" yaml:"timeFormat"`
}

// Metrics defines prometheus endpoint configuration
type Metrics struct {
	// Addr accepts value for combined "host:port"
	// empty value turns off the endpoint
	Addr      string `env:"ADDR" yaml:"addr"`
	Namespace string `env:"NAMESPACE" yaml:"namespace"`
	// Limit keeps count of measurements per job, 0 means unbounded
	Limit int `env:"LIMIT" yaml:"limit"`
}

// Job defines command executed by scheduler
type Job struct {
	Name           string   `env:"NAME" yaml:"name"`
	Command        []string `env:"COMMAND" yaml:"command"`
	Environment    []string `env:"ENVIRONMENT" yaml:"environment,omitempty"`
	CombinedOutput bool     `env:"COMBINEDOUTPUT" yaml:"combinedOutput,omitempty"`

	Schedule     schedule.Mode      `env:"SCHEDULE" yaml:"schedule"`
	Delay        *duration.Duration `env:"DELAY" yaml:"delay"`
	InitialDelay duration.Duration  `env:"INITIALDELAY" yaml:"initialDelay,omitempty"`
}

// Validate checks the command, the schedule is checked on submit
func (j Job) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("%w: job name is empty", ErrConfig)
	}
	if len(j.Command) == 0 || j.Command[0] == "" {
		return fmt.Errorf("%w: job %q: command is empty", ErrConfig, j.Name)
	}
	return nil
}

// Options builds scheduler options
func (j Job) Options(task func(ctx context.Context)) schedule.Options {
	return schedule.Options{
		Schedule:     j.Schedule,
		Task:         task,
		Delay:        j.Delay,
		InitialDelay: j.InitialDelay,
	}
}

// Jobs defines a set of configurations
type Jobs []Job

// UnmarshalYAML implements the yaml.Unmarshaler interface.
// Applies decode to items in collection for setting only fields present in yaml.
func (jj *Jobs) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("%w: jobs: expected sequence at line %d", ErrConfig, value.Line)
	}
	for i, node := range value.Content {
		if len(*jj) < i+1 {
			*jj = append(*jj, Job{})
		}
		if err := node.Decode(&(*jj)[i]); err != nil {
			return err
		}
	}
	return nil
}

// Config defines configuration
type Config struct {
	Log     Log     `envPrefix:"LOG_" yaml:"log"`
	Metrics Metrics `envPrefix:"METRICS_" yaml:"metrics"`
	Jobs    Jobs    `envPrefix:"JOBS_" yaml:"jobs"`
}

func defaults() Config {
	return Config{
		Log: Log{
			Condense:    0,
			FileMaxSize: 1024 * 1024 * 10, // 10MB
			FileRotate:  5,
			Level:       Info,
			Colors:      false,
			TimeFormat:  time.RFC3339,
		},
		Metrics: Metrics{
			Addr:      "",
			Namespace: "unitdur",
			Limit:     1000,
		},
	}
}

// GetConfig implements Singleton pattern
func GetConfig() *Config {
	once.Do(func() {
		/* buffer the logging while configuring */
		logBuf := &logzer.LogBuffer{
			Level: zerolog.TraceLevel,
			Size:  16,
		}
		log.Logger = zerolog.New(logBuf).
			With().Timestamp().Caller().Logger()
		log.Info().Msgf("Build info: %s / %s", buildTag, buildTime)

		applyFlags()
		c, err := Load()
		if err != nil {
			log.Err(err).
				Str("configPath", ConfigPath()).
				Msg("could not load config, using defaults")
			d := defaults()
			c = &d
		}
		cfg = c
		/* init logger and flush buffer */
		cfg.initLogger()
		logzer.WriteLogBuffer(logBuf)
	})
	return cfg
}

// Load merges defaults, file, and env
func Load() (*Config, error) {
	c := new(Config)
	*c = defaults()
	configPath := ConfigPath()
	if data, err := os.ReadFile(configPath); err != nil {
		log.Warn().Err(err).
			Str("configPath", configPath).
			Msg("could not read config")
	} else if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfig, configPath, err)
	}
	if err := applyEnv(c); err != nil {
		log.Warn().Err(err).
			Msg("could not apply env vars")
	}
	for _, j := range c.Jobs {
		if err := j.Validate(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ConfigPath returns config file path
func ConfigPath() string {
	configPath := os.Getenv(ConfigEnv)
	if configPath == "" {
		configPath = ConfigName
		if wd, err := os.Getwd(); err == nil {
			configPath = path.Join(wd, ConfigName)
		}
	}
	return configPath
}

// InitTracerProvider inits provider
func (cfg Config) InitTracerProvider(serviceName string) (*tracesdk.TracerProvider, error) {
	return initOTLP(serviceName)
}

// Hashsum calculates FNV non-cryptographic hash suitable for checking the equality
func (cfg Config) Hashsum() ([]byte, error) {
	return Hashsum(cfg)
}

func (cfg Config) initLogger() {
	if cfg.Log.Level > Trace {
		cfg.Log.Level = Trace
	}
	if cfg.Log.Level < Error {
		cfg.Log.Level = Error
	}
	lvl := [...]zerolog.Level{3, 2, 1, 0, -1}[cfg.Log.Level]
	condense, err := cfg.Log.Condense.Std()
	if err != nil || lvl <= zerolog.DebugLevel {
		condense = 0
	}
	opts := []logzer.Option{
		logzer.WithColors(cfg.Log.Colors),
		logzer.WithCondense(condense),
		logzer.WithLastErrors(10),
		logzer.WithLevel(lvl),
		logzer.WithTimeFormat(cfg.Log.TimeFormat),
	}
	if cfg.Log.File != "" {
		opts = append(opts, logzer.WithLogFile(&logzer.LogFile{
			FilePath: cfg.Log.File,
			MaxSize:  cfg.Log.FileMaxSize,
			Rotate:   cfg.Log.FileRotate,
		}))
	}

	/* prevent writes in global logger */
	log.Logger = zerolog.Nop()
	/* reset to defaults */
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	/* apply options */
	w := logzer.NewLoggerWriter(opts...)
	/* set global logger */
	log.Logger = zerolog.New(w).
		With().Timestamp().Caller().
		Logger()
	slog.SetDefault(slog.New(&logzer.SLogHandler{CallerSkipFrame: 3}))
	/* set as standard logger output */
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

// Hashsum calculates FNV non-cryptographic hash over JSON representation of args
func Hashsum(args ...interface{}) ([]byte, error) {
	h := fnv.New128()
	enc := json.NewEncoder(h)
	for _, arg := range args {
		if err := enc.Encode(arg); err != nil {
			return nil, err
		}
	}
	return h.Sum(nil), nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables read at invocation time. They take precedence over the config file.
const (
	EnvRevision     = "COMMIT_ID"
	EnvProject      = "CLEARML_PROJECT_NAME"
	EnvTaskName     = "CLEARML_TASK_NAME"
	EnvBestTag      = "CLEARML_BEST_TAGNAME"
	EnvScalarTitle  = "CLEARML_SCALAR_TITLE"
	EnvScalarSeries = "CLEARML_SCALAR_SERIES"
	EnvDirection    = "CLEARML_SCALAR_MIN_MAX"
	EnvAPIHost      = "CLEARML_API_HOST"
	EnvAccessKey    = "CLEARML_API_ACCESS_KEY"
	EnvSecretKey    = "CLEARML_API_SECRET_KEY"
	EnvAPITimeout   = "CLEARML_API_TIMEOUT"
)

const DefaultAPIHost = "https://api.clear.ml"

// ErrConfiguration is matched by every configuration failure.
var ErrConfiguration = errors.New("configuration error")

type Config struct {
	Revision string  `yaml:"revision"`
	Project  string  `yaml:"project_name"`
	TaskName string  `yaml:"task_name"`
	BestTag  string  `yaml:"best_tag"`
	Scalar   Scalar  `yaml:"scalar"`
	Server   Server  `yaml:"server"`
	Secrets  Secrets `yaml:"secrets"`
	Results  Results `yaml:"results"`
}

type Scalar struct {
	Title     string `yaml:"title"`
	Series    string `yaml:"series"`
	Direction string `yaml:"direction"`
}

type Server struct {
	APIHost        string `yaml:"api_host"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

// MissingError reports required settings that were not supplied, by environment variable name.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required configuration: %s must be set", strings.Join(e.Vars, ", "))
}

func (e *MissingError) Is(target error) bool {
	return target == ErrConfiguration
}

// Load reads the optional yaml file at path and applies environment overrides.
// An empty path skips the file. Presence of individual settings is checked later by
// ValidateResolve and ValidateCompare, since each command needs a different subset.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	lookup := os.LookupEnv
	if envFile := envOr(os.LookupEnv, "BESTGATE_SECRETS_FILE", cfg.Secrets.EnvFile); envFile != "" {
		secrets, err := ParseEnvFile(envFile)
		if err != nil {
			return nil, fmt.Errorf("reading secrets env file: %w", err)
		}
		lookup = withFallback(os.LookupEnv, secrets)
	}
	if err := cfg.applyEnvOverrides(lookup); err != nil {
		return nil, err
	}
	if cfg.Server.APIHost == "" {
		cfg.Server.APIHost = DefaultAPIHost
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides(lookup func(string) (string, bool)) error {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Revision, EnvRevision)
	set(&c.Project, EnvProject)
	set(&c.TaskName, EnvTaskName)
	set(&c.BestTag, EnvBestTag)
	set(&c.Scalar.Title, EnvScalarTitle)
	set(&c.Scalar.Series, EnvScalarSeries)
	set(&c.Scalar.Direction, EnvDirection)
	set(&c.Server.APIHost, EnvAPIHost)
	set(&c.Server.AccessKey, EnvAccessKey)
	set(&c.Server.SecretKey, EnvSecretKey)

	if v, ok := lookup(EnvAPITimeout); ok && v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number of seconds, got %q", ErrConfiguration, EnvAPITimeout, v)
		}
		c.Server.TimeoutSeconds = secs
	}
	return nil
}

// ValidateResolve checks the settings needed to look up a task for a revision.
func (c *Config) ValidateResolve() error {
	return missing(
		req{c.Project, EnvProject},
		req{c.TaskName, EnvTaskName},
	)
}

// ValidateCompare checks the settings needed to compare and promote. The direction is
// checked first so an unrecognized value is always reported as such.
func (c *Config) ValidateCompare() error {
	if c.Scalar.Direction != "" {
		if _, err := ParseDirection(c.Scalar.Direction); err != nil {
			return err
		}
	}
	return missing(
		req{c.Project, EnvProject},
		req{c.TaskName, EnvTaskName},
		req{c.BestTag, EnvBestTag},
		req{c.Scalar.Title, EnvScalarTitle},
		req{c.Scalar.Series, EnvScalarSeries},
		req{c.Scalar.Direction, EnvDirection},
	)
}

// ValidateServer checks the credentials needed to talk to the tracking server.
func (c *Config) ValidateServer() error {
	return missing(
		req{c.Server.APIHost, EnvAPIHost},
		req{c.Server.AccessKey, EnvAccessKey},
		req{c.Server.SecretKey, EnvSecretKey},
	)
}

// Direction returns the parsed comparison direction.
func (c *Config) Direction() (Direction, error) {
	return ParseDirection(c.Scalar.Direction)
}

type req struct {
	value string
	env   string
}

func missing(reqs ...req) error {
	var vars []string
	for _, r := range reqs {
		if r.value == "" {
			vars = append(vars, r.env)
		}
	}
	if len(vars) > 0 {
		return &MissingError{Vars: vars}
	}
	return nil
}

func envOr(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func withFallback(primary func(string) (string, bool), secondary map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok && v != "" {
			return v, true
		}
		v, ok := secondary[key]
		return v, ok
	}
}

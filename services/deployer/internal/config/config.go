package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/sys/atomicwriter"
	"github.com/spf13/viper"
)

const (
	envPrefix       = "LMB"
	defaultFileName = ".lmb.json"

	DefaultArtifactKey = "lambda.zip"
	DefaultQualifier   = "stage"
	DefaultDockerImage = "lambci/lambda"
)

// Defaults returns the built-in function settings. Role has no sensible default.
func Defaults() Settings {
	return Settings{
		Env:     EnvDev,
		Runtime: "nodejs6.10",
		Handler: "index.handler",
		Timeout: 3,
		Memory:  128,
		Region:  "us-east-1",
		Bucket:  "lambda-bucket",
	}
}

// Merge fills every unset field of overrides from defaults.
func Merge(overrides, defaults Settings) Settings {
	out := overrides
	if out.Env == "" {
		out.Env = defaults.Env
	}
	if out.Runtime == "" {
		out.Runtime = defaults.Runtime
	}
	if out.Role == "" {
		out.Role = defaults.Role
	}
	if out.Handler == "" {
		out.Handler = defaults.Handler
	}
	if out.Timeout == 0 {
		out.Timeout = defaults.Timeout
	}
	if out.Memory == 0 {
		out.Memory = defaults.Memory
	}
	if out.Region == "" {
		out.Region = defaults.Region
	}
	if out.Bucket == "" {
		out.Bucket = defaults.Bucket
	}
	return out
}

// Missing lists the keys of s that are still unset.
func (s Settings) Missing() []string {
	var missing []string
	if s.Env == "" {
		missing = append(missing, "env")
	}
	if s.Runtime == "" {
		missing = append(missing, "runtime")
	}
	if s.Role == "" {
		missing = append(missing, "role")
	}
	if s.Handler == "" {
		missing = append(missing, "handler")
	}
	if s.Timeout == 0 {
		missing = append(missing, "timeout")
	}
	if s.Memory == 0 {
		missing = append(missing, "memory")
	}
	if s.Region == "" {
		missing = append(missing, "region")
	}
	if s.Bucket == "" {
		missing = append(missing, "bucket")
	}
	return missing
}

// Validate checks the fields that are set.
func (s Settings) Validate() error {
	if s.Env != "" && !s.Env.Valid() {
		return fmt.Errorf("invalid env %q", s.Env)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("invalid timeout %d", s.Timeout)
	}
	if s.Memory < 0 {
		return fmt.Errorf("invalid memory %d", s.Memory)
	}
	return nil
}

// DefaultPath returns ~/.lmb.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, defaultFileName), nil
}

// Store reads and writes the global settings file.
type Store struct {
	Path string
}

// Load reads the settings file. A missing or empty file yields the tool defaults;
// LMB_* environment variables override what the file says.
func (s Store) Load() (Global, error) {
	if strings.TrimSpace(s.Path) == "" {
		return Global{}, errors.New("config path is required")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(s.Path)
	v.SetConfigType("json")

	info, err := os.Stat(s.Path)
	switch {
	case err == nil && info.Size() > 0:
		if err := v.ReadInConfig(); err != nil {
			return Global{}, fmt.Errorf("read %s: %w", s.Path, err)
		}
	case err == nil, errors.Is(err, fs.ErrNotExist):
	default:
		return Global{}, fmt.Errorf("stat %s: %w", s.Path, err)
	}

	var g Global
	if err := v.Unmarshal(&g); err != nil {
		return Global{}, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	if err := g.Settings.Validate(); err != nil {
		return Global{}, fmt.Errorf("%s: %w", s.Path, err)
	}
	return g, nil
}

// Save writes g to the settings file, creating its directory when needed.
func (s Store) Save(g Global) error {
	if strings.TrimSpace(s.Path) == "" {
		return errors.New("config path is required")
	}
	if err := g.Settings.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := atomicwriter.WriteFile(s.Path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", s.Path, err)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
// Function settings default to unset; Merge applies their built-in values later.
func setDefaults(v *viper.Viper) {
	for _, key := range []string{"env", "runtime", "role", "handler", "region", "bucket"} {
		v.SetDefault(key, "")
	}
	v.SetDefault("timeout", 0)
	v.SetDefault("memory", 0)

	v.SetDefault("artifact_key", DefaultArtifactKey)
	v.SetDefault("artifact_acl", "")
	v.SetDefault("qualifier", DefaultQualifier)
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("lambda_endpoint", "")
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("pushgateway_url", "")
	v.SetDefault("nats_url", "")
	v.SetDefault("docker_image", DefaultDockerImage)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

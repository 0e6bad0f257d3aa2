package config

import (
	"fmt"
	"strings"
)

// Environment is the deployment stage a function belongs to.
type Environment string

const (
	EnvDev   Environment = "dev"
	EnvStage Environment = "stage"
	EnvProd  Environment = "prod"
)

// Environments lists the accepted stages in prompt order.
func Environments() []Environment {
	return []Environment{EnvDev, EnvStage, EnvProd}
}

// Valid reports whether e is one of the known stages.
func (e Environment) Valid() bool {
	switch e {
	case EnvDev, EnvStage, EnvProd:
		return true
	default:
		return false
	}
}

// ParseEnvironment converts user input into an Environment.
func ParseEnvironment(s string) (Environment, error) {
	env := Environment(strings.ToLower(strings.TrimSpace(s)))
	if !env.Valid() {
		return "", fmt.Errorf("unknown environment %q (want dev, stage or prod)", s)
	}
	return env, nil
}

// Settings is the deployment configuration of a function. Every field is optional;
// a zero value means "not set" and is filled by Merge.
type Settings struct {
	Env     Environment `json:"env,omitempty" yaml:"env,omitempty" mapstructure:"env"`
	Runtime string      `json:"runtime,omitempty" yaml:"runtime,omitempty" mapstructure:"runtime"`
	Role    string      `json:"role,omitempty" yaml:"role,omitempty" mapstructure:"role"`
	Handler string      `json:"handler,omitempty" yaml:"handler,omitempty" mapstructure:"handler"`
	Timeout int32       `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
	Memory  int32       `json:"memory,omitempty" yaml:"memory,omitempty" mapstructure:"memory"`
	Region  string      `json:"region,omitempty" yaml:"region,omitempty" mapstructure:"region"`
	Bucket  string      `json:"bucket,omitempty" yaml:"bucket,omitempty" mapstructure:"bucket"`
}

// Log controls the CLI logger.
type Log struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty" mapstructure:"level"`
	Format string `json:"format,omitempty" yaml:"format,omitempty" mapstructure:"format"`
}

// Global is the content of the per-user settings file: function defaults plus
// tool settings that never end up in a package manifest.
type Global struct {
	Settings `yaml:",inline" mapstructure:",squash"`

	ArtifactKey    string `json:"artifact_key,omitempty" yaml:"artifact_key,omitempty" mapstructure:"artifact_key"`
	ArtifactACL    string `json:"artifact_acl,omitempty" yaml:"artifact_acl,omitempty" mapstructure:"artifact_acl"`
	Qualifier      string `json:"qualifier,omitempty" yaml:"qualifier,omitempty" mapstructure:"qualifier"`
	S3Endpoint     string `json:"s3_endpoint,omitempty" yaml:"s3_endpoint,omitempty" mapstructure:"s3_endpoint"`
	LambdaEndpoint string `json:"lambda_endpoint,omitempty" yaml:"lambda_endpoint,omitempty" mapstructure:"lambda_endpoint"`
	OTelEndpoint   string `json:"otel_endpoint,omitempty" yaml:"otel_endpoint,omitempty" mapstructure:"otel_endpoint"`
	PushgatewayURL string `json:"pushgateway_url,omitempty" yaml:"pushgateway_url,omitempty" mapstructure:"pushgateway_url"`
	NATSURL        string `json:"nats_url,omitempty" yaml:"nats_url,omitempty" mapstructure:"nats_url"`
	DockerImage    string `json:"docker_image,omitempty" yaml:"docker_image,omitempty" mapstructure:"docker_image"`

	Log Log `json:"log,omitzero" yaml:"log,omitempty" mapstructure:"log"`
}

// FunctionDefaults resolves the global function settings against the built-in defaults.
func (g Global) FunctionDefaults() Settings {
	return Merge(g.Settings, Defaults())
}

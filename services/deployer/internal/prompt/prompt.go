package prompt

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/Masterminds/semver/v3"

	"lmb/services/deployer/internal/config"
)

const roleHelp = "Please enter the Amazon Resource Name (ARN) of the IAM role that Lambda assumes " +
	"when it executes your function to access any other Amazon Web Services (AWS) resources."

// Runtimes offered by the runtime question.
var Runtimes = []string{
	"nodejs6.10",
	"nodejs8.10",
	"nodejs18.x",
	"nodejs20.x",
	"nodejs22.x",
	"python2.7",
	"python3.6",
	"python3.11",
	"python3.12",
	"python3.13",
	"java8",
	"java21",
	"dotnetcore1.0",
	"dotnet8",
}

// Identity is the package identity asked for when a manifest is brand new.
type Identity struct {
	Name        string
	Version     string
	Description string
}

// Prompter asks the user for configuration values.
type Prompter interface {
	AskSettings(defaults config.Settings) (config.Settings, error)
	AskIdentity(defaults Identity) (Identity, error)
}

// Survey is a terminal Prompter.
type Survey struct {
	opts []survey.AskOpt
}

// NewSurvey builds a terminal prompter bound to the given streams.
func NewSurvey(in terminal.FileReader, out terminal.FileWriter, errOut io.Writer) *Survey {
	return &Survey{opts: []survey.AskOpt{survey.WithStdio(in, out, errOut)}}
}

// AskSettings asks every function setting, offering defaults as the preselected answers.
func (s *Survey) AskSettings(defaults config.Settings) (config.Settings, error) {
	var ans settingsAnswers
	if err := survey.Ask(settingsQuestions(defaults), &ans, s.opts...); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return config.Settings{}, errors.New("prompt interrupted")
		}
		return config.Settings{}, err
	}
	return ans.settings()
}

// AskIdentity asks for the package name, version and description.
func (s *Survey) AskIdentity(defaults Identity) (Identity, error) {
	var ans identityAnswers
	if err := survey.Ask(identityQuestions(defaults), &ans, s.opts...); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return Identity{}, errors.New("prompt interrupted")
		}
		return Identity{}, err
	}
	return Identity{
		Name:        strings.TrimSpace(ans.Name),
		Version:     strings.TrimSpace(ans.Version),
		Description: strings.TrimSpace(ans.Description),
	}, nil
}

type settingsAnswers struct {
	Env     string `survey:"env"`
	Runtime string `survey:"runtime"`
	Role    string `survey:"role"`
	Handler string `survey:"handler"`
	Timeout string `survey:"timeout"`
	Memory  string `survey:"memory"`
	Region  string `survey:"region"`
	Bucket  string `survey:"bucket"`
}

func (a settingsAnswers) settings() (config.Settings, error) {
	env, err := config.ParseEnvironment(a.Env)
	if err != nil {
		return config.Settings{}, err
	}
	timeout, err := parsePositive("timeout", a.Timeout)
	if err != nil {
		return config.Settings{}, err
	}
	memory, err := parsePositive("memory", a.Memory)
	if err != nil {
		return config.Settings{}, err
	}
	return config.Settings{
		Env:     env,
		Runtime: strings.TrimSpace(a.Runtime),
		Role:    strings.TrimSpace(a.Role),
		Handler: strings.TrimSpace(a.Handler),
		Timeout: timeout,
		Memory:  memory,
		Region:  strings.TrimSpace(a.Region),
		Bucket:  strings.TrimSpace(a.Bucket),
	}, nil
}

type identityAnswers struct {
	Name        string `survey:"name"`
	Version     string `survey:"version"`
	Description string `survey:"description"`
}

func settingsQuestions(d config.Settings) []*survey.Question {
	envs := make([]string, 0, 3)
	for _, e := range config.Environments() {
		envs = append(envs, string(e))
	}

	runtimes := runtimeOptions(d.Runtime)

	return []*survey.Question{
		{
			Name: "env",
			Prompt: &survey.Select{
				Message: "Environment of the function:",
				Options: envs,
				Default: withDefault(envs, string(d.Env)),
			},
		},
		{
			Name: "runtime",
			Prompt: &survey.Select{
				Message: "Runtime of the function:",
				Options: runtimes,
				Default: withDefault(runtimes, d.Runtime),
			},
		},
		{
			Name:     "role",
			Prompt:   &survey.Input{Message: "AWS Lambda role used:", Default: d.Role},
			Validate: requiredWithMessage(roleHelp),
		},
		{
			Name:     "handler",
			Prompt:   &survey.Input{Message: "Event handler name:", Default: d.Handler},
			Validate: validHandler,
		},
		{
			Name:     "timeout",
			Prompt:   &survey.Input{Message: "Function timeout in seconds:", Default: itoa(d.Timeout)},
			Validate: positiveInt,
		},
		{
			Name:     "memory",
			Prompt:   &survey.Input{Message: "Memory (mb) allocated to the function:", Default: itoa(d.Memory)},
			Validate: positiveInt,
		},
		{
			Name:     "region",
			Prompt:   &survey.Input{Message: "Regional endpoint:", Default: d.Region},
			Validate: survey.Required,
		},
		{
			Name:     "bucket",
			Prompt:   &survey.Input{Message: "S3 Bucket to upload the code:", Default: d.Bucket},
			Validate: survey.Required,
		},
	}
}

func identityQuestions(d Identity) []*survey.Question {
	version := d.Version
	if version == "" {
		version = "0.0.1"
	}
	return []*survey.Question{
		{
			Name:     "name",
			Prompt:   &survey.Input{Message: "Function name:", Default: d.Name},
			Validate: survey.Required,
		},
		{
			Name:     "version",
			Prompt:   &survey.Input{Message: "Version:", Default: version},
			Validate: validVersion,
		},
		{
			Name:   "description",
			Prompt: &survey.Input{Message: "Description:", Default: d.Description},
		},
	}
}

// runtimeOptions returns the known runtimes, keeping a configured runtime selectable
// even when it is not in the list.
func runtimeOptions(current string) []string {
	opts := slices.Clone(Runtimes)
	if current != "" && !slices.Contains(opts, current) {
		opts = append(opts, current)
	}
	return opts
}

func withDefault(options []string, value string) string {
	if slices.Contains(options, value) {
		return value
	}
	return options[0]
}

func itoa(n int32) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(int(n))
}

func requiredWithMessage(msg string) survey.Validator {
	return func(ans interface{}) error {
		s, _ := ans.(string)
		if strings.TrimSpace(s) == "" {
			return errors.New(msg)
		}
		return nil
	}
}

func positiveInt(ans interface{}) error {
	s, _ := ans.(string)
	_, err := parsePositive("value", s)
	return err
}

func validHandler(ans interface{}) error {
	s, _ := ans.(string)
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return fmt.Errorf("handler %q must look like module.export", s)
	}
	return nil
}

func validVersion(ans interface{}) error {
	s, _ := ans.(string)
	if _, err := semver.StrictNewVersion(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("version %q is not valid semver", s)
	}
	return nil
}

func parsePositive(field, raw string) (int32, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", field, raw)
	}
	return int32(n), nil
}

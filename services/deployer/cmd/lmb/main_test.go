package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmb/services/deployer/internal/config"
	"lmb/services/deployer/internal/invoke"
	"lmb/services/deployer/internal/manifest"
	"lmb/services/deployer/internal/prompt"
)

type fakePrompter struct {
	settings      config.Settings
	identity      *prompt.Identity
	gotDefaults   config.Settings
	gotIdentity   prompt.Identity
	identityAsked bool
}

func (f *fakePrompter) AskSettings(defaults config.Settings) (config.Settings, error) {
	f.gotDefaults = defaults
	return config.Merge(f.settings, defaults), nil
}

func (f *fakePrompter) AskIdentity(defaults prompt.Identity) (prompt.Identity, error) {
	f.identityAsked = true
	f.gotIdentity = defaults
	if f.identity != nil {
		return *f.identity, nil
	}
	return defaults, nil
}

type harness struct {
	dir        string
	configPath string
}

func newHarness(t *testing.T) harness {
	t.Helper()
	return harness{
		dir:        t.TempDir(),
		configPath: filepath.Join(t.TempDir(), "lmb.json"),
	}
}

func (h harness) run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand(a)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--dir", h.dir, "--config", h.configPath))
	err := cmd.ExecuteContext(context.Background())
	a.close()
	return out.String(), err
}

func (h harness) initialize(t *testing.T) {
	t.Helper()
	a := newApp()
	a.prompter = &fakePrompter{
		settings: config.Settings{Role: "arn:aws:iam::123456789012:role/lambda"},
		identity: &prompt.Identity{Name: "greeter", Version: "0.0.1", Description: "says hello"},
	}
	out, err := h.run(t, a, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "greeter@0.0.1 configured for dev")
}

func TestVersionCommand(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, newApp(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lmb dev")
}

func TestConfigCommandSavesGlobalSettings(t *testing.T) {
	h := newHarness(t)
	a := newApp()
	fp := &fakePrompter{settings: config.Settings{Region: "eu-west-1", Role: "arn:role"}}
	a.prompter = fp

	_, err := h.run(t, a, "config")
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), fp.gotDefaults)

	g, err := config.Store{Path: h.configPath}.Load()
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", g.Region)
	assert.Equal(t, "arn:role", g.Role)
	assert.Equal(t, config.EnvDev, g.Env)
}

func TestInitCommandWritesManifestAndLayout(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)

	data, err := os.ReadFile(filepath.Join(h.dir, "package.json"))
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "greeter", raw["name"])
	assert.Equal(t, "0.0.1", raw["version"])
	lambda, ok := raw["lambda"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "index.handler", lambda["handler"])
	assert.Equal(t, "arn:aws:iam::123456789012:role/lambda", lambda["role"])

	assert.DirExists(t, filepath.Join(h.dir, "src"))
	assert.DirExists(t, filepath.Join(h.dir, "tests"))
	assert.FileExists(t, filepath.Join(h.dir, "src", "index.js"))
}

func TestInitCommandKeepsExistingIdentity(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)

	a := newApp()
	fp := &fakePrompter{settings: config.Settings{Memory: 512}}
	a.prompter = fp
	_, err := h.run(t, a, "init")
	require.NoError(t, err)
	assert.False(t, fp.identityAsked)
	assert.Equal(t, "arn:aws:iam::123456789012:role/lambda", fp.gotDefaults.Role)

	d, err := manifest.NewManager(manifest.Layout{Root: h.dir}, config.Defaults()).Load()
	require.NoError(t, err)
	assert.Equal(t, int32(512), d.Lambda.Memory)
	assert.Equal(t, "greeter", d.Name)
}

func TestTestCommandRunsRegisteredHandler(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)

	a := newApp()
	var got json.RawMessage
	require.NoError(t, a.handlers.Register("index.handler", func(_ context.Context, event json.RawMessage, _ *invoke.Context) (any, error) {
		got = event
		return map[string]int{"statusCode": 200}, nil
	}))

	out, err := h.run(t, a, "test", `{"name": "world"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"world"}`, string(got))
	assert.JSONEq(t, `{"statusCode":200}`, out)
}

func TestDeployCommandRequiresInitializedPackage(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, newApp(), "deploy")
	require.ErrorIs(t, err, manifest.ErrNotInitialized)
}

func TestDeployCommandRejectsBadArguments(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, newApp(), "deploy", "huge")
	require.Error(t, err)

	_, err = h.run(t, newApp(), "deploy", "patch", "qa")
	require.Error(t, err)
}

func TestInfoCommand(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, newApp(), "info")
	require.NoError(t, err)
	assert.Contains(t, out, "config_file: "+h.configPath)
	assert.Contains(t, out, "runtime: nodejs6.10")
	assert.NotContains(t, out, "package:")

	h.initialize(t)
	out, err = h.run(t, newApp(), "info")
	require.NoError(t, err)
	assert.Contains(t, out, "name: greeter")
	assert.Contains(t, out, "resolved:")
}

package manifest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmb/services/deployer/internal/config"
)

const role = "arn:aws:iam::123456789012:role/lambda"

func newTestManager(t *testing.T) (*Manager, Layout) {
	t.Helper()
	layout := Layout{Root: t.TempDir()}
	defaults := config.Defaults()
	defaults.Role = role
	return NewManager(layout, defaults), layout
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReadCreatesEmptyManifest(t *testing.T) {
	m, layout := newTestManager(t)

	d, err := m.Read()
	require.NoError(t, err)
	assert.True(t, d.Empty())

	info, err := os.Stat(layout.Manifest())
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestLoadNotInitialized(t *testing.T) {
	tests := map[string]string{
		"missing file":  "",
		"empty file":    "   \n",
		"no lambda key": `{"name": "orders", "version": "1.0.0"}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			m, layout := newTestManager(t)
			if content != "" {
				writeFile(t, layout.Manifest(), content)
			}
			_, err := m.Load()
			assert.ErrorIs(t, err, ErrNotInitialized)
		})
	}
}

func TestLoadRejectsMalformedManifest(t *testing.T) {
	m, layout := newTestManager(t)
	writeFile(t, layout.Manifest(), `{"name": `)
	_, err := m.Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotInitialized)
}

func TestLoadAcceptsQuotedNumbers(t *testing.T) {
	m, layout := newTestManager(t)
	writeFile(t, layout.Manifest(), `{"name": "orders", "lambda": {"env": "dev", "timeout": "10", "memory": "256"}}`)
	d, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, int32(10), d.Lambda.Timeout)
	assert.Equal(t, int32(256), d.Lambda.Memory)
}

func TestVerify(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Verify(Descriptor{Name: "orders", Version: "1.0.0", Lambda: &config.Settings{}})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = m.Verify(Descriptor{Name: "orders", Version: "1.0.0"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = m.Verify(Descriptor{Version: "1.0.0", Lambda: &config.Settings{Env: config.EnvDev}})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = m.Verify(Descriptor{Name: "orders", Lambda: &config.Settings{Env: "qa"}})
	assert.ErrorIs(t, err, ErrNotConfigured)

	in := Descriptor{Name: "orders", Version: "1.0.0", Lambda: &config.Settings{Env: config.EnvProd, Memory: 512}}
	got, err := m.Verify(in)
	require.NoError(t, err)
	assert.Equal(t, config.EnvProd, got.Lambda.Env)
	assert.Equal(t, int32(512), got.Lambda.Memory)
	assert.Equal(t, role, got.Lambda.Role)
	assert.Equal(t, "lambda-bucket", got.Lambda.Bucket)
	assert.Empty(t, in.Lambda.Role, "input must not be modified")
}

func TestVerifyReportsMissingRole(t *testing.T) {
	m := NewManager(Layout{Root: t.TempDir()}, config.Defaults())
	_, err := m.Verify(Descriptor{Name: "orders", Lambda: &config.Settings{Env: config.EnvDev}})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorContains(t, err, "role")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	m, layout := newTestManager(t)
	writeFile(t, layout.Manifest(), `{"name":"orders","version":"1.0.0","dependencies":{"uuid":"^9.0.0"},"lambda":{"env":"dev"}}`)

	d, err := m.Load()
	require.NoError(t, err)
	d, err = Patch(d, BumpPatch)
	require.NoError(t, err)
	require.NoError(t, m.Save(d))

	raw, err := os.ReadFile(layout.Manifest())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n\t\"version\": \"1.0.1\"")
	assert.Contains(t, string(raw), `"uuid": "^9.0.0"`)

	again, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", again.Version)
}

func TestSaveFailureIsPersistenceError(t *testing.T) {
	m, layout := newTestManager(t)
	require.NoError(t, os.MkdirAll(layout.Manifest(), 0o755))

	err := m.Save(Descriptor{Name: "orders"})
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestEnsureLayoutIsIdempotent(t *testing.T) {
	m, layout := newTestManager(t)
	require.NoError(t, m.EnsureLayout())
	require.NoError(t, m.EnsureLayout())

	for _, dir := range []string{layout.Source(), layout.Tests()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestArchiveStagesAndZips(t *testing.T) {
	m, layout := newTestManager(t)
	writeFile(t, layout.Manifest(), `{"name":"orders","lambda":{"env":"dev"}}`)
	writeFile(t, filepath.Join(layout.Source(), "index.js"), "exports.handler = () => 1;")
	writeFile(t, filepath.Join(layout.Dependencies(), "uuid", "index.js"), "module.exports = 'uuid';")

	art, err := m.Archive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, layout.Artifact(), art.Path)

	data, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), art.Size)
	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), art.SHA256)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		if f.Name == "package.json" {
			rc, err := f.Open()
			require.NoError(t, err)
			body, _ := io.ReadAll(rc)
			rc.Close()
			assert.JSONEq(t, `{"name":"orders","lambda":{"env":"dev"}}`, string(body))
		}
	}
	sort.Strings(names)
	assert.Equal(t, []string{"index.js", "node_modules/uuid/index.js", "package.json"}, names)

	assert.FileExists(t, layout.StagedManifest())
	assert.DirExists(t, layout.StagedDependencies())
}

func TestArchiveWithoutDependencies(t *testing.T) {
	m, layout := newTestManager(t)
	writeFile(t, layout.Manifest(), `{"name":"orders"}`)
	writeFile(t, filepath.Join(layout.Source(), "index.js"), "x")

	_, err := m.Archive(context.Background())
	require.NoError(t, err)
	assert.NoDirExists(t, layout.StagedDependencies())
}

func TestArchiveFailureRemovesPartialArtifact(t *testing.T) {
	m, layout := newTestManager(t)
	writeFile(t, layout.Manifest(), `{"name":"orders"}`)
	writeFile(t, filepath.Join(layout.Source(), "index.js"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Archive(ctx)
	assert.ErrorIs(t, err, ErrArchive)
	assert.NoFileExists(t, layout.Artifact())

	empty, _ := newTestManager(t)
	_, err = empty.Archive(context.Background())
	assert.ErrorIs(t, err, ErrArchive)
}

func TestCleanLocalIsIdempotent(t *testing.T) {
	m, layout := newTestManager(t)
	writeFile(t, layout.Manifest(), `{"name":"orders"}`)
	writeFile(t, filepath.Join(layout.Source(), "index.js"), "x")
	writeFile(t, filepath.Join(layout.Dependencies(), "uuid", "index.js"), "x")

	_, err := m.Archive(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.CleanLocal())
	require.NoError(t, m.CleanLocal())

	assert.NoFileExists(t, layout.Artifact())
	assert.NoFileExists(t, layout.StagedManifest())
	assert.NoDirExists(t, layout.StagedDependencies())
	assert.FileExists(t, filepath.Join(layout.Source(), "index.js"))
	assert.FileExists(t, layout.Manifest())
}

func TestCleanLocalKeepsVendoredSourceDependencies(t *testing.T) {
	m, layout := newTestManager(t)
	vendored := filepath.Join(layout.StagedDependencies(), "lib", "index.js")
	writeFile(t, vendored, "x")

	require.NoError(t, m.CleanLocal())
	assert.FileExists(t, vendored)
}

func TestScaffold(t *testing.T) {
	m, layout := newTestManager(t)

	path, err := m.Scaffold("nodejs20.x", "index.handler", "orders")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(layout.Source(), "index.js"), path)
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "exports.handler")

	path, err = m.Scaffold("nodejs20.x", "index.handler", "orders")
	require.NoError(t, err)
	assert.Empty(t, path, "existing module is left alone")

	path, err = m.Scaffold("python3.12", "app.lambda_handler", "orders")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(layout.Source(), "app.py"), path)

	path, err = m.Scaffold("java21", "com.example.Handler", "orders")
	require.NoError(t, err)
	assert.Empty(t, path)

	_, err = m.Scaffold("nodejs20.x", "index", "orders")
	assert.Error(t, err)
}

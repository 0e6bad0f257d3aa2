package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/sys/atomicwriter"
	"github.com/otiai10/copy"

	"lmb/pkg/render"
	"lmb/services/deployer/internal/archive"
	"lmb/services/deployer/internal/config"
)

// Artifact describes a freshly built archive.
type Artifact struct {
	Path   string
	Size   int64
	SHA256 string
}

// Manager owns the manifest and the build artifacts of one project.
type Manager struct {
	layout   Layout
	defaults config.Settings
	archiver *archive.Writer
}

// NewManager returns a Manager for the project at layout.Root. defaults fill the
// unset fields of the manifest's lambda record during Verify.
func NewManager(layout Layout, defaults config.Settings) *Manager {
	return &Manager{
		layout:   layout,
		defaults: defaults,
		archiver: archive.NewWriter(),
	}
}

// Layout returns the project paths.
func (m *Manager) Layout() Layout {
	return m.layout
}

// Read ensures the manifest exists and decodes it. Missing and empty files both
// yield an empty Descriptor.
func (m *Manager) Read() (Descriptor, error) {
	path := m.layout.Manifest()
	if err := ensureFile(path); err != nil {
		return Descriptor{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return Descriptor{}, nil
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return d, nil
}

// Load reads the manifest and requires its lambda record.
func (m *Manager) Load() (Descriptor, error) {
	d, err := m.Read()
	if err != nil {
		return Descriptor{}, err
	}
	if d.Empty() || d.Lambda == nil {
		return Descriptor{}, ErrNotInitialized
	}
	return d, nil
}

// Verify checks that d can be deployed and returns a copy whose lambda record is
// fully resolved against the defaults. It performs no I/O.
func (m *Manager) Verify(d Descriptor) (Descriptor, error) {
	if d.Lambda == nil || d.Lambda.Env == "" {
		return Descriptor{}, ErrNotConfigured
	}
	if strings.TrimSpace(d.Name) == "" {
		return Descriptor{}, fmt.Errorf("%w: the package has no name", ErrNotConfigured)
	}

	out := d.Clone()
	resolved := config.Merge(*d.Lambda, m.defaults)
	out.Lambda = &resolved

	if !resolved.Env.Valid() {
		return Descriptor{}, fmt.Errorf("%w: unknown env %q", ErrNotConfigured, resolved.Env)
	}
	if missing := resolved.Missing(); len(missing) > 0 {
		return Descriptor{}, fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	if err := resolved.Validate(); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	return out, nil
}

// Save writes d to the manifest, tab indented.
func (m *Manager) Save(d Descriptor) error {
	data, err := json.MarshalIndent(d, "", "\t")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersistence, err)
	}
	path := m.layout.Manifest()
	if err := ensureFile(path); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := atomicwriter.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// EnsureLayout creates the source and tests directories.
func (m *Manager) EnsureLayout() error {
	for _, dir := range []string{m.layout.Source(), m.layout.Tests()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Archive stages the manifest and dependencies next to the sources and zips the
// source directory into the artifact file. Staged copies are left in place for
// CleanLocal; a partially written artifact is removed.
func (m *Manager) Archive(ctx context.Context) (Artifact, error) {
	if err := m.stage(); err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	path := m.layout.Artifact()
	file, err := os.Create(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	hash := sha256.New()
	writeErr := m.archiver.Write(ctx, m.layout.Source(), io.MultiWriter(file, hash))
	closeErr := file.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		os.Remove(path)
		return Artifact{}, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrArchive, err)
	}
	return Artifact{
		Path:   path,
		Size:   info.Size(),
		SHA256: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

func (m *Manager) stage() error {
	if _, err := os.Stat(m.layout.Source()); err != nil {
		return fmt.Errorf("source directory: %w", err)
	}
	if err := copy.Copy(m.layout.Manifest(), m.layout.StagedManifest()); err != nil {
		return fmt.Errorf("stage manifest: %w", err)
	}
	deps := m.layout.Dependencies()
	if _, err := os.Stat(deps); errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("stat dependencies: %w", err)
	}
	if err := copy.Copy(deps, m.layout.StagedDependencies()); err != nil {
		return fmt.Errorf("stage dependencies: %w", err)
	}
	return nil
}

// CleanLocal removes the artifact and the staged copies. Removing what is already
// gone succeeds. The staged dependency tree is only removed when the project has a
// root dependency tree it could have been copied from.
func (m *Manager) CleanLocal() error {
	paths := []string{m.layout.Artifact(), m.layout.StagedManifest()}
	if _, err := os.Stat(m.layout.Dependencies()); err == nil {
		paths = append(paths, m.layout.StagedDependencies())
	}
	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// Scaffold writes a starter handler for handler ("module.export") into the source
// directory when the module file does not exist yet. It returns the path written,
// or "" when nothing was written.
func (m *Manager) Scaffold(runtime, handler, function string) (string, error) {
	ext := handlerExtension(runtime)
	if ext == "" {
		return "", nil
	}
	i := strings.LastIndex(handler, ".")
	if i <= 0 || i == len(handler)-1 {
		return "", fmt.Errorf("invalid handler %q", handler)
	}
	module, export := handler[:i], handler[i+1:]

	path := filepath.Join(m.layout.Source(), filepath.FromSlash(module)+"."+ext)
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	engine, err := render.Default()
	if err != nil {
		return "", err
	}
	body, err := engine.Handler(ext, render.HandlerData{Export: export, Function: function})
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := atomicwriter.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func handlerExtension(runtime string) string {
	switch {
	case strings.HasPrefix(runtime, "nodejs"):
		return "js"
	case strings.HasPrefix(runtime, "python"):
		return "py"
	default:
		return ""
	}
}

func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("ensure %s: %w", path, err)
	}
	return f.Close()
}

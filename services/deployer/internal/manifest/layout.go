package manifest

import "path/filepath"

const (
	ManifestFile    = "package.json"
	SourceDir       = "src"
	TestsDir        = "tests"
	DependenciesDir = "node_modules"
	ArtifactFile    = "lambda.zip"
)

// Layout resolves the well-known paths of a project rooted at Root.
type Layout struct {
	Root string
}

func (l Layout) Manifest() string     { return filepath.Join(l.Root, ManifestFile) }
func (l Layout) Source() string       { return filepath.Join(l.Root, SourceDir) }
func (l Layout) Tests() string        { return filepath.Join(l.Root, TestsDir) }
func (l Layout) Dependencies() string { return filepath.Join(l.Root, DependenciesDir) }
func (l Layout) Artifact() string     { return filepath.Join(l.Root, ArtifactFile) }

// StagedManifest is the copy of the manifest placed next to the sources before archiving.
func (l Layout) StagedManifest() string { return filepath.Join(l.Source(), ManifestFile) }

// StagedDependencies is the copy of the dependency tree placed next to the sources.
func (l Layout) StagedDependencies() string { return filepath.Join(l.Source(), DependenciesDir) }

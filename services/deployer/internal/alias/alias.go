package alias

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"

	"lmb/pkg/lambda"
)

var (
	ErrAliasList   = errors.New("list aliases")
	ErrAliasDelete = errors.New("delete alias")
	ErrAliasCreate = errors.New("create alias")
)

const (
	// DefaultName is used when no alias name is given.
	DefaultName = "dev"
	// Latest targets the unpublished head of the function.
	Latest = "$LATEST"
)

// Record is a named pointer from an alias to a function version.
type Record struct {
	FunctionName  string
	AliasName     string
	TargetVersion string
	Description   string
}

// WithDefaults fills the alias name and target version when unset.
func (r Record) WithDefaults() Record {
	if strings.TrimSpace(r.AliasName) == "" {
		r.AliasName = DefaultName
	}
	if strings.TrimSpace(r.TargetVersion) == "" {
		r.TargetVersion = Latest
	}
	return r
}

func (r Record) String() string {
	return fmt.Sprintf("%s >> %s = %s", r.AliasName, r.TargetVersion, r.Description)
}

// API is the remote alias capability.
type API interface {
	ListAliases(ctx context.Context, function string) iter.Seq2[lambda.Alias, error]
	ListVersions(ctx context.Context, function string) iter.Seq2[string, error]
	GetAlias(ctx context.Context, function, alias string) (*lambda.Alias, error)
	CreateAlias(ctx context.Context, a lambda.Alias) (*lambda.Alias, error)
	DeleteAlias(ctx context.Context, function, alias string) error
}

// Service manages aliases directly against remote state; nothing is cached.
type Service struct {
	api    API
	logger *zap.Logger
}

// NewService returns a Service backed by api.
func NewService(api API, logger *zap.Logger) (*Service, error) {
	if api == nil {
		return nil, errors.New("alias api is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{api: api, logger: logger}, nil
}

// List yields the function's aliases as they are on the remote side at call time.
// The sequence can be consumed once.
func (s *Service) List(ctx context.Context, function string) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for a, err := range s.api.ListAliases(ctx, function) {
			if err != nil {
				yield(Record{}, fmt.Errorf("%w: %w", ErrAliasList, err))
				return
			}
			if !yield(fromRemote(a), nil) {
				return
			}
		}
	}
}

// Versions yields the function's version identifiers.
func (s *Service) Versions(ctx context.Context, function string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for v, err := range s.api.ListVersions(ctx, function) {
			if err != nil {
				yield("", fmt.Errorf("%w: versions: %w", ErrAliasList, err))
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Exists reports whether the alias is present. Any lookup failure reads as absent;
// failures other than "not found" are logged so outages are not silent.
func (s *Service) Exists(ctx context.Context, function, alias string) bool {
	_, err := s.api.GetAlias(ctx, function, alias)
	if err == nil {
		return true
	}
	if !errors.Is(err, lambda.ErrNotFound) {
		s.logger.Warn("alias lookup failed, treating alias as absent",
			zap.String("function", function),
			zap.String("alias", alias),
			zap.Error(err),
		)
	}
	return false
}

// Delete removes the alias when knownToExist is true and is a no-op otherwise.
func (s *Service) Delete(ctx context.Context, function, alias string, knownToExist bool) error {
	if !knownToExist {
		return nil
	}
	if err := s.api.DeleteAlias(ctx, function, alias); err != nil {
		return fmt.Errorf("%w %q: %w", ErrAliasDelete, alias, err)
	}
	return nil
}

// Create points a new alias at r.TargetVersion.
func (s *Service) Create(ctx context.Context, r Record) (Record, error) {
	created, err := s.api.CreateAlias(ctx, lambda.Alias{
		FunctionName:    r.FunctionName,
		Name:            r.AliasName,
		FunctionVersion: r.TargetVersion,
		Description:     r.Description,
	})
	if err != nil {
		return Record{}, fmt.Errorf("%w %q: %w", ErrAliasCreate, r.AliasName, err)
	}
	return fromRemote(*created), nil
}

// Tag replaces the alias: exists, delete, create. The remote API has no atomic
// replace, so a create failure after a successful delete leaves the alias absent
// and is reported as ErrAliasCreate.
func (s *Service) Tag(ctx context.Context, r Record) (Record, error) {
	r = r.WithDefaults()
	exists := s.Exists(ctx, r.FunctionName, r.AliasName)
	if err := s.Delete(ctx, r.FunctionName, r.AliasName, exists); err != nil {
		return Record{}, err
	}
	out, err := s.Create(ctx, r)
	if err != nil {
		if exists {
			s.logger.Error("alias was deleted but could not be recreated",
				zap.String("function", r.FunctionName),
				zap.String("alias", r.AliasName),
				zap.Error(err),
			)
		}
		return Record{}, err
	}
	return out, nil
}

// Remove deletes the alias if it exists.
func (s *Service) Remove(ctx context.Context, r Record) error {
	r = r.WithDefaults()
	exists := s.Exists(ctx, r.FunctionName, r.AliasName)
	return s.Delete(ctx, r.FunctionName, r.AliasName, exists)
}

func fromRemote(a lambda.Alias) Record {
	return Record{
		FunctionName:  a.FunctionName,
		AliasName:     a.Name,
		TargetVersion: a.FunctionVersion,
		Description:   a.Description,
	}
}

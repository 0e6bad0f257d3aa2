package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"lmb/services/deployer/internal/config"
)

var (
	ErrNotInitialized = errors.New(`the package is not initialized, run "lmb init" first`)
	ErrNotConfigured  = errors.New(`the package does not have a lambda configuration, run "lmb init" first`)
	ErrInvalidVersion = errors.New("the package version is invalid")
	ErrPersistence    = errors.New("save package manifest")
	ErrArchive        = errors.New("build archive")
)

const (
	keyName        = "name"
	keyVersion     = "version"
	keyDescription = "description"
	keyLambda      = "lambda"
)

// BumpKind selects which semver component a deploy increments.
type BumpKind string

const (
	BumpMajor BumpKind = "major"
	BumpMinor BumpKind = "minor"
	BumpPatch BumpKind = "patch"
)

// ParseBumpKind converts user input into a BumpKind; empty input means patch.
func ParseBumpKind(s string) (BumpKind, error) {
	switch k := BumpKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return BumpPatch, nil
	case BumpMajor, BumpMinor, BumpPatch:
		return k, nil
	default:
		return "", fmt.Errorf("unknown version bump %q (want major, minor or patch)", s)
	}
}

// Descriptor is the project's package.json. Only the identity fields and the
// lambda record are interpreted; every other key is carried through untouched.
type Descriptor struct {
	Name        string
	Version     string
	Description string
	Lambda      *config.Settings

	// RemoteExists is refreshed by probing the platform on every deploy and never persisted.
	RemoteExists bool

	extra map[string]json.RawMessage
	order []string
}

// Empty reports whether the manifest carried no content at all.
func (d Descriptor) Empty() bool {
	return d.Name == "" && d.Version == "" && d.Description == "" && d.Lambda == nil && len(d.extra) == 0
}

// Clone returns a deep copy.
func (d Descriptor) Clone() Descriptor {
	out := d
	if d.Lambda != nil {
		l := *d.Lambda
		out.Lambda = &l
	}
	out.extra = maps.Clone(d.extra)
	out.order = slices.Clone(d.order)
	return out
}

// Extra returns the raw value of a key the descriptor does not interpret.
func (d Descriptor) Extra(key string) (json.RawMessage, bool) {
	v, ok := d.extra[key]
	return v, ok
}

// Patch returns a copy of d with its version bumped. d is never modified.
func Patch(d Descriptor, kind BumpKind) (Descriptor, error) {
	current, err := parseVersion(d.Version)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrInvalidVersion, d.Version)
	}

	var next semver.Version
	switch kind {
	case BumpMajor:
		// 2.0.0-rc.1 is released as 2.0.0.
		if current.Prerelease() != "" && current.Minor() == 0 && current.Patch() == 0 {
			next, err = release(*current)
		} else {
			next = current.IncMajor()
		}
	case BumpMinor:
		if current.Prerelease() != "" && current.Patch() == 0 {
			next, err = release(*current)
		} else {
			next = current.IncMinor()
		}
	case BumpPatch, "":
		next = current.IncPatch()
	default:
		return Descriptor{}, fmt.Errorf("unknown version bump %q", kind)
	}
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q: %w", ErrInvalidVersion, d.Version, err)
	}

	out := d.Clone()
	out.Version = next.String()
	return out, nil
}

// release drops the prerelease and build metadata of v.
func release(v semver.Version) (semver.Version, error) {
	v, err := v.SetPrerelease("")
	if err != nil {
		return semver.Version{}, err
	}
	return v.SetMetadata("")
}

// parseVersion accepts strict semver with an optional leading "v".
func parseVersion(raw string) (*semver.Version, error) {
	return semver.StrictNewVersion(strings.TrimPrefix(strings.TrimSpace(raw), "v"))
}

// MarshalJSON writes keys in the order they were read; new keys follow in
// name, version, description, extras, lambda order.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	fields := maps.Clone(d.extra)
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	setString := func(key, value string) error {
		if value == "" {
			if _, had := d.extra[key]; !had && !slices.Contains(d.order, key) {
				return nil
			}
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		fields[key] = raw
		return nil
	}
	if err := setString(keyName, d.Name); err != nil {
		return nil, err
	}
	if err := setString(keyVersion, d.Version); err != nil {
		return nil, err
	}
	if err := setString(keyDescription, d.Description); err != nil {
		return nil, err
	}
	if d.Lambda != nil {
		raw, err := json.Marshal(d.Lambda)
		if err != nil {
			return nil, err
		}
		fields[keyLambda] = raw
	} else {
		delete(fields, keyLambda)
	}

	keys := make([]string, 0, len(fields))
	for _, k := range d.order {
		if _, ok := fields[k]; ok && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range fields {
		if !slices.Contains(keys, k) && k != keyName && k != keyVersion && k != keyDescription && k != keyLambda {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	for _, k := range []string{keyName, keyVersion, keyDescription} {
		if _, ok := fields[k]; ok && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	keys = append(keys, rest...)
	if _, ok := fields[keyLambda]; ok && !slices.Contains(keys, keyLambda) {
		keys = append(keys, keyLambda)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(fields[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a package.json object, remembering key order and unknown keys.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("package manifest must be a JSON object")
	}

	out := Descriptor{extra: map[string]json.RawMessage{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		if !slices.Contains(out.order, key) {
			out.order = append(out.order, key)
		}

		switch key {
		case keyName:
			err = decodeString(raw, &out.Name)
		case keyVersion:
			err = decodeString(raw, &out.Version)
		case keyDescription:
			err = decodeString(raw, &out.Description)
		case keyLambda:
			out.Lambda = nil
			if !isNull(raw) {
				out.Lambda, err = decodeSettings(raw)
			}
		default:
			out.extra[key] = raw
		}
		if err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*d = out
	return nil
}

func decodeString(raw json.RawMessage, dst *string) error {
	if isNull(raw) {
		*dst = ""
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// decodeSettings reads a lambda block. Timeout and memory may be numbers or numeric strings.
func decodeSettings(raw json.RawMessage) (*config.Settings, error) {
	type plain config.Settings
	var v struct {
		plain
		Timeout flexInt32 `json:"timeout,omitempty"`
		Memory  flexInt32 `json:"memory,omitempty"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	s := config.Settings(v.plain)
	s.Timeout = int32(v.Timeout)
	s.Memory = int32(v.Memory)
	return &s, nil
}

type flexInt32 int32

func (n *flexInt32) UnmarshalJSON(data []byte) error {
	text := string(bytes.TrimSpace(data))
	if text == "null" {
		*n = 0
		return nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		text = strings.TrimSpace(s)
		if text == "" {
			*n = 0
			return nil
		}
	}
	v, err := strconv.ParseInt(text, 10, 32)
	if err != nil {
		return fmt.Errorf("%s is not a whole number", data)
	}
	*n = flexInt32(v)
	return nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

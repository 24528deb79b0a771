package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/rcliao/agent-context/internal/logging"
)

// Latest selects the newest version in Registry.Load.
const Latest = "latest"

// DirName is the directory Discover looks for.
const DirName = ".agent-context/prompts"

// Recognized prompt file extensions, compressed forms included.
var extensions = []string{".yaml", ".yml", ".yaml.gz", ".yaml.zst"}

// Registry reads prompts laid out as <dir>/<name>/versions/<version>.yaml.
type Registry struct {
	dir    string
	logger *zap.Logger
}

type RegistryOption func(*Registry)

func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logging.OrNop(l) }
}

func NewRegistry(dir string, opts ...RegistryOption) *Registry {
	r := &Registry{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the registry root.
func (r *Registry) Dir() string { return r.dir }

// NotFoundError reports a missing prompt or version.
type NotFoundError struct {
	Name      string
	Version   string
	Available []string
}

func (e *NotFoundError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("prompt %q not found (available: %s)", e.Name, strings.Join(e.Available, ", "))
	}
	return fmt.Sprintf("prompt %q version %q not found (available: %s)", e.Name, e.Version, strings.Join(e.Available, ", "))
}

// Names lists prompts that have a versions directory, sorted.
func (r *Registry) Names() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prompt registry: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if fi, err := os.Stat(r.versionsDir(e.Name())); err == nil && fi.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Versions lists a prompt's versions, newest first. Versions that all parse
// as semantic versions sort by precedence; otherwise they sort by name.
func (r *Registry) Versions(name string) ([]string, error) {
	entries, err := os.ReadDir(r.versionsDir(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prompt registry: %w", err)
	}
	seen := map[string]bool{}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		v, ok := versionOf(e.Name())
		if ok && !seen[v] {
			seen[v] = true
			versions = append(versions, v)
		}
	}
	sortVersions(versions)
	return versions, nil
}

func versionOf(file string) (string, bool) {
	for _, ext := range extensions {
		if v, ok := strings.CutSuffix(file, ext); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func sortVersions(vs []string) {
	canon := func(v string) string {
		if !strings.HasPrefix(v, "v") {
			v = "v" + v
		}
		return v
	}
	allSemver := true
	for _, v := range vs {
		if !semver.IsValid(canon(v)) {
			allSemver = false
			break
		}
	}
	sort.SliceStable(vs, func(i, j int) bool {
		if allSemver {
			if c := semver.Compare(canon(vs[i]), canon(vs[j])); c != 0 {
				return c > 0
			}
		}
		return vs[i] > vs[j]
	})
}

// Load reads and parses a prompt version. An empty version or Latest picks
// the newest.
func (r *Registry) Load(name, version string) (*Prompt, error) {
	data, resolved, err := r.read(name, version)
	if err != nil {
		return nil, err
	}
	p, err := Parse(name, data)
	if err != nil {
		return nil, err
	}
	if p.Version == "" {
		p.Version = resolved
	}
	r.logger.Debug("prompt loaded", zap.String("name", name), zap.String("version", p.Version))
	return p, nil
}

// Diff returns a unified diff of the files for versions from and to.
func (r *Registry) Diff(name, from, to string) (string, error) {
	a, fromV, err := r.read(name, from)
	if err != nil {
		return "", err
	}
	b, toV, err := r.read(name, to)
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: fmt.Sprintf("%s v%s", name, fromV),
		ToFile:   fmt.Sprintf("%s v%s", name, toV),
		Context:  3,
	})
}

func (r *Registry) read(name, version string) ([]byte, string, error) {
	if version == "" || version == Latest {
		versions, err := r.Versions(name)
		if err != nil {
			return nil, "", err
		}
		if len(versions) == 0 {
			names, _ := r.Names()
			return nil, "", &NotFoundError{Name: name, Available: names}
		}
		version = versions[0]
	}
	for _, ext := range extensions {
		path := filepath.Join(r.versionsDir(name), version+ext)
		data, err := readFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("prompt %q: %w", name, err)
		}
		return data, version, nil
	}
	versions, _ := r.Versions(name)
	return nil, "", &NotFoundError{Name: name, Version: version, Available: versions}
}

func (r *Registry) versionsDir(name string) string {
	return filepath.Join(r.dir, name, "versions")
}

// readFile reads path, decompressing .gz and .zst files.
func readFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip %s: %w", filepath.Base(path), err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(raw, nil)
	}
	return raw, nil
}

// Discover walks up from start looking for DirName, at most ten levels.
// It returns "" when none is found.
func Discover(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for range 10 {
		candidate := filepath.Join(dir, DirName)
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

package prompt

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeVersion(t *testing.T, root, name, file string, data []byte) {
	t.Helper()
	dir := filepath.Join(root, name, "versions")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), data, 0o644))
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zstded(t *testing.T, s string) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll([]byte(s), nil)
}

func greeting(word string) string {
	return "type: freeform\nprompt:\n  greet: " + word + " {{.name}}\n  sign: Bye\n"
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	root := t.TempDir()
	writeVersion(t, root, "greet", "1.0.yaml", []byte(greeting("Hello")))
	writeVersion(t, root, "greet", "1.9.yaml.zst", zstded(t, greeting("Hi")))
	writeVersion(t, root, "greet", "1.10.yaml.gz", gzipped(t, greeting("Hey")))
	writeVersion(t, root, "greet", "README.md", []byte("ignored"))
	writeVersion(t, root, "support", "2.0.yml", []byte(supportYAML))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "drafts"), 0o755))
	return NewRegistry(root)
}

func TestRegistryNamesAndVersions(t *testing.T) {
	r := newTestRegistry(t)

	names, err := r.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"greet", "support"}, names)

	versions, err := r.Versions("greet")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.10", "1.9", "1.0"}, versions)

	none, err := r.Versions("missing")
	require.NoError(t, err)
	assert.Empty(t, none)

	empty, err := NewRegistry(filepath.Join(t.TempDir(), "nope")).Names()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRegistryLoad(t *testing.T) {
	r := newTestRegistry(t)

	latest, err := r.Load("greet", Latest)
	require.NoError(t, err)
	assert.Equal(t, "1.10", latest.Version)
	out, err := latest.Render(map[string]any{"name": "Ada"}, "greet")
	require.NoError(t, err)
	assert.Equal(t, "Hey Ada", out.Text)

	old, err := r.Load("greet", "1.9")
	require.NoError(t, err)
	out, err = old.Render(map[string]any{"name": "Ada"}, "greet")
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada", out.Text)

	support, err := r.Load("support", "")
	require.NoError(t, err)
	assert.Equal(t, "2.0", support.Version)
}

func TestRegistryNotFound(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Load("greet", "3.0")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []string{"1.10", "1.9", "1.0"}, nf.Available)

	_, err = r.Load("nobody", Latest)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []string{"greet", "support"}, nf.Available)
}

func TestRegistryDiff(t *testing.T) {
	r := newTestRegistry(t)
	diff, err := r.Diff("greet", "1.0", Latest)
	require.NoError(t, err)

	lines := strings.Split(diff, "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, "--- greet v1.0", lines[0])
	assert.Equal(t, "+++ greet v1.10", lines[1])
	assert.Contains(t, diff, "-  greet: Hello {{.name}}\n")
	assert.Contains(t, diff, "+  greet: Hey {{.name}}\n")
	assert.Contains(t, diff, "   sign: Bye\n")

	same, err := r.Diff("greet", "1.0", "1.0")
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestSortVersionsFallsBackToNames(t *testing.T) {
	vs := []string{"alpha", "1.0", "beta"}
	sortVersions(vs)
	assert.Equal(t, []string{"beta", "alpha", "1.0"}, vs)

	vs = []string{"v1.2.0", "v1.10.0", "1.3"}
	sortVersions(vs)
	assert.Equal(t, []string{"v1.10.0", "1.3", "v1.2.0"}, vs)
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	want := filepath.Join(root, DirName)
	require.NoError(t, os.MkdirAll(want, 0o755))
	deep := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	assert.Equal(t, want, Discover(deep))
	assert.Equal(t, want, Discover(root))
	assert.Empty(t, Discover(t.TempDir()))
}

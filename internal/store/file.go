package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/rcliao/agent-context/internal/model"
)

const (
	fileName   = "file"
	fileSuffix = ".cbor"
)

var (
	recordEnc cbor.EncMode
	recordDec cbor.DecMode
)

func init() {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	var err error
	recordEnc, err = encOptions.EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	recordDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

// File implements Backend as a directory with one CBOR record per key.
// File names are the BLAKE3 hash of the key, so arbitrary keys are safe on
// any filesystem.
type File struct {
	dir string
	ids *idSource

	mu  sync.Mutex
	seq int64
}

// NewFile opens or creates a record directory.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	f := &File{dir: dir, ids: newIDSource()}
	all, err := f.readAll()
	if err != nil {
		return nil, err
	}
	for _, m := range all {
		if m.Seq > f.seq {
			f.seq = m.Seq
		}
	}
	return f, nil
}

func (f *File) Name() string { return fileName }

func (f *File) path(key string) string {
	sum := blake3.Sum256([]byte(key))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:])+fileSuffix)
}

func (f *File) Put(_ context.Context, m model.Memory) (model.Memory, error) {
	m = stamp(m.Clone())
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, err := f.read(f.path(m.Key))
	switch {
	case err == nil:
		m.ID, m.Seq = prev.ID, prev.Seq
	case errors.Is(err, fs.ErrNotExist):
		f.seq++
		m.ID, m.Seq = f.ids.next(), f.seq
	default:
		return model.Memory{}, backendErr(fileName, "put", m.Key, err)
	}

	data, err := recordEnc.Marshal(m)
	if err != nil {
		return model.Memory{}, backendErr(fileName, "put", m.Key, err)
	}
	// Write to a temp file and rename so readers never see a torn record.
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return model.Memory{}, backendErr(fileName, "put", m.Key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return model.Memory{}, backendErr(fileName, "put", m.Key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return model.Memory{}, backendErr(fileName, "put", m.Key, err)
	}
	if err := os.Rename(tmp.Name(), f.path(m.Key)); err != nil {
		os.Remove(tmp.Name())
		return model.Memory{}, backendErr(fileName, "put", m.Key, err)
	}
	return m, nil
}

func (f *File) Get(_ context.Context, key string) (model.Memory, error) {
	m, err := f.read(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return model.Memory{}, notFound(key)
	}
	if err != nil {
		return model.Memory{}, backendErr(fileName, "get", key, err)
	}
	return m, nil
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return notFound(key)
	}
	if err != nil {
		return backendErr(fileName, "delete", key, err)
	}
	return nil
}

func (f *File) List(_ context.Context, flt Filter) ([]model.Memory, error) {
	all, err := f.readAll()
	if err != nil {
		return nil, err
	}
	var out []model.Memory
	for _, m := range all {
		if flt.Match(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *File) Close() error { return nil }

func (f *File) read(path string) (model.Memory, error) {
	var m model.Memory
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := recordDec.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

func (f *File) readAll() ([]model.Memory, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, backendErr(fileName, "list", "", err)
	}
	var out []model.Memory
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		m, err := f.read(filepath.Join(f.dir, e.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, backendErr(fileName, "list", "", err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

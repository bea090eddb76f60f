package traffic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

// Placeholders substituted in fixture manifests.
const (
	PlaceholderID   = "@@UNIQUEID@@"
	PlaceholderName = "@@NAME@@"
)

// ErrNoFixtures is returned when the fixture directory holds no packages.
var ErrNoFixtures = errors.New("traffic: no fixture packages")

var manifestNames = map[string]bool{"manifest.json": true, "install.rdf": true}

func isPackage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".xpi" || ext == ".zip"
}

// Fixtures is the set of package files available for upload. The set is
// read-only to simulated users and may be refreshed by Watch.
type Fixtures struct {
	dir    string
	logger *zap.Logger

	mu    sync.RWMutex
	files []string
}

// LoadFixtures scans dir for .xpi and .zip packages.
func LoadFixtures(dir string, logger *zap.Logger) (*Fixtures, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fixtures{dir: dir, logger: logger}
	if err := f.scan(); err != nil {
		return nil, err
	}
	if len(f.Files()) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFixtures, dir)
	}
	return f, nil
}

func (f *Fixtures) scan() error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("read fixtures: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && isPackage(e.Name()) {
			files = append(files, filepath.Join(f.dir, e.Name()))
		}
	}
	sort.Strings(files)

	f.mu.Lock()
	f.files = files
	f.mu.Unlock()
	return nil
}

// Files returns the current package paths.
func (f *Fixtures) Files() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.files...)
}

// Pick returns a random package path.
func (f *Fixtures) Pick(rnd *rand.Rand) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.files) == 0 {
		return "", ErrNoFixtures
	}
	return f.files[rnd.Intn(len(f.files))], nil
}

// Watch rescans the directory whenever a package is added, changed or
// removed, until ctx is done.
func (f *Fixtures) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fixture watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("watch %s: %w", f.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 || !isPackage(event.Name) {
				continue
			}
			if err := f.scan(); err != nil {
				f.logger.Warn("fixture rescan failed", zap.Error(err))
				continue
			}
			f.logger.Info("fixtures reloaded", zap.Int("count", len(f.Files())), zap.String("trigger", event.Name))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("fixture watcher error", zap.Error(err))
		}
	}
}

// Package is a fixture copy with unique placeholders filled in.
type Package struct {
	Path string
	ID   string
	Name string
}

// NewPackageIdentity returns a fresh id and name for a package.
func NewPackageIdentity() (id, name string) {
	u := uuid.New()
	return "{" + u.String() + "}", "marketplace-loadtest-" + strings.ReplaceAll(u.String(), "-", "")[:12]
}

// BuildPackage writes a copy of src into dir with the manifest
// placeholders replaced by id and name. Other entries are copied as is.
func BuildPackage(src, dir, id, name string) (*Package, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("open fixture %s: %w", src, err)
	}
	defer func() { _ = r.Close() }()

	dst := filepath.Join(dir, filepath.Base(src))
	out, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("create package: %w", err)
	}
	defer func() { _ = out.Close() }()

	w := zip.NewWriter(out)
	replacer := strings.NewReplacer(PlaceholderID, id, PlaceholderName, name)

	for _, entry := range r.File {
		if err := copyEntry(w, entry, replacer); err != nil {
			return nil, fmt.Errorf("copy %s: %w", entry.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finish package: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close package: %w", err)
	}
	return &Package{Path: dst, ID: id, Name: name}, nil
}

func copyEntry(w *zip.Writer, entry *zip.File, replacer *strings.Replacer) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	if manifestNames[entry.Name] {
		data = []byte(replacer.Replace(string(data)))
	}

	header := entry.FileHeader
	dst, err := w.CreateHeader(&header)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, bytes.NewReader(data))
	return err
}

// WithUniquePackage builds a unique copy of src in a private temporary
// directory, passes it to fn and removes the directory afterwards.
func WithUniquePackage(src string, fn func(*Package) error) error {
	dir, err := os.MkdirTemp("", "marketplace-upload-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	id, name := NewPackageIdentity()
	pkg, err := BuildPackage(src, dir, id, name)
	if err != nil {
		return err
	}
	return fn(pkg)
}

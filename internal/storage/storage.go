package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/shop-scraper/internal/models"
)

const (
	artifactFile = "products.json"
	imagesDir    = "images"
)

var (
	ErrArtifactExists = errors.New("artifact already exists")
	ErrNotFound       = errors.New("artifact not found")
	ErrInvalidRunID   = errors.New("invalid run id")
)

// StorageError wraps every filesystem failure of the store.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

var (
	runIDPattern    = regexp.MustCompile(`^\d{8}T\d{6}Z-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	specialChars    = regexp.MustCompile(`[^\w\s-]`)
	whitespaceChars = regexp.MustCompile(`\s+`)
)

// NewRunID returns a collision-free, sortable run identifier.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()
}

// FileStore keeps one directory per run under basePath:
//
//	<basePath>/<runID>/products.json
//	<basePath>/<runID>/images/<name>
type FileStore struct {
	basePath string

	mu         sync.Mutex
	imageNames map[string]map[string]int
}

func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, &StorageError{Op: "create", Path: basePath, Err: err}
	}

	info, err := os.Stat(basePath)
	if err != nil {
		return nil, &StorageError{Op: "stat", Path: basePath, Err: err}
	}
	if !info.IsDir() {
		return nil, &StorageError{Op: "stat", Path: basePath, Err: fmt.Errorf("not a directory")}
	}

	return &FileStore{
		basePath:   basePath,
		imageNames: make(map[string]map[string]int),
	}, nil
}

func (s *FileStore) BasePath() string {
	return s.basePath
}

// Save writes the artifact of a run and returns its path. An existing
// artifact for the same run is never replaced.
func (s *FileStore) Save(ctx context.Context, artifact *models.Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &StorageError{Op: "save", Path: s.basePath, Err: err}
	}

	dir, err := s.runDir(artifact.RunID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &StorageError{Op: "save", Path: dir, Err: err}
	}

	path := filepath.Join(dir, artifactFile)
	if _, err := os.Stat(path); err == nil {
		return "", &StorageError{Op: "save", Path: path, Err: ErrArtifactExists}
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", &StorageError{Op: "encode", Path: path, Err: err}
	}

	// Write to temp file first for atomicity
	tmp, err := os.CreateTemp(dir, artifactFile+".*.tmp")
	if err != nil {
		return "", &StorageError{Op: "save", Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", &StorageError{Op: "save", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", &StorageError{Op: "sync", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", &StorageError{Op: "save", Path: path, Err: err}
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", &StorageError{Op: "rename", Path: path, Err: err}
	}

	s.Forget(artifact.RunID)

	return path, nil
}

func (s *FileStore) Load(runID string) (*models.Artifact, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, artifactFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &StorageError{Op: "load", Path: path, Err: ErrNotFound}
		}
		return nil, &StorageError{Op: "load", Path: path, Err: err}
	}

	var artifact models.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, &StorageError{Op: "decode", Path: path, Err: err}
	}

	return &artifact, nil
}

// SaveImage stores image bytes for a run under a name derived from the
// product name. Repeated names within a run get a numeric suffix.
func (s *FileStore) SaveImage(runID, productName string, data []byte) (string, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return "", err
	}
	dir = filepath.Join(dir, imagesDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &StorageError{Op: "save_image", Path: dir, Err: err}
	}

	path := filepath.Join(dir, s.imageName(runID, productName))
	if err := createExclusive(path, bytes.NewReader(data)); err != nil {
		return "", &StorageError{Op: "save_image", Path: path, Err: err}
	}

	return path, nil
}

// createExclusive writes r to a new file at path. A partly written file is
// removed again.
func createExclusive(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func (s *FileStore) imageName(runID, productName string) string {
	base := SanitizeName(productName)
	if base == "" {
		base = "image"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names, ok := s.imageNames[runID]
	if !ok {
		names = make(map[string]int)
		s.imageNames[runID] = names
	}

	names[base]++
	if n := names[base]; n > 1 {
		return fmt.Sprintf("%s_%d", base, n)
	}
	return base
}

// Forget drops the image name bookkeeping of a run. Runs call it when they
// end, whether or not their artifact was saved.
func (s *FileStore) Forget(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.imageNames, runID)
}

func (s *FileStore) runDir(runID string) (string, error) {
	if !runIDPattern.MatchString(runID) {
		return "", &StorageError{Op: "resolve", Path: runID, Err: ErrInvalidRunID}
	}
	return filepath.Join(s.basePath, runID), nil
}

// SanitizeName removes characters that are not letters, digits, spaces,
// underscores or dashes, and joins words with underscores.
func SanitizeName(name string) string {
	name = specialChars.ReplaceAllString(name, "")
	name = whitespaceChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if len(name) > 100 {
		name = name[:100]
	}
	return name
}

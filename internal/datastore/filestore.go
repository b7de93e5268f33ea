// filestore.go: JSON file backed result store
package datastore

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kickspeed/kickspeed/internal/errors"
	"github.com/kickspeed/kickspeed/internal/logger"
)

// RecordFileName is the record file inside each submission directory
const RecordFileName = "analysis.json"

const (
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// FileStore keeps one JSON record per submission under root/<id>/analysis.json.
// Parsed records are cached because they never change once written.
type FileStore struct {
	root  string
	cache *cache.Cache
	log   logger.Logger
}

// NewFileStore creates a store rooted at root. A non-positive ttl disables caching.
func NewFileStore(root string, ttl time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(root, dirPermissions); err != nil {
		return nil, storeError(err, errors.CategoryFileIO, "create_root", "path", root)
	}

	s := &FileStore{
		root: root,
		log:  GetLogger(),
	}
	if ttl > 0 {
		s.cache = cache.New(ttl, 2*ttl)
	}
	return s, nil
}

// Root returns the store directory
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) recordPath(id string) string {
	return filepath.Join(s.root, id, RecordFileName)
}

// Get reads the record for id. Missing created_at is filled from the file modification time.
func (s *FileStore) Get(id string) (*AnalysisResult, error) {
	if !ValidID(id) {
		return nil, errors.NotFoundError("result", id)
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(id); ok {
			if r, ok := cached.(*AnalysisResult); ok {
				return r.Clone(), nil
			}
		}
	}

	path := s.recordPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFoundError("result", id)
		}
		return nil, storeError(err, errors.CategoryFileIO, "read_result", "id", id)
	}

	var result AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, storeError(err, errors.CategoryFileParsing, "parse_result", "id", id)
	}

	if result.ID == "" {
		result.ID = id
	}

	if result.CreatedAt.IsZero() {
		info, err := os.Stat(path)
		if err != nil {
			return nil, storeError(err, errors.CategoryFileIO, "stat_result", "id", id)
		}
		result.CreatedAt = info.ModTime().UTC()
	}

	if s.cache != nil {
		s.cache.SetDefault(id, result.Clone())
	}
	return &result, nil
}

// Put writes a new record atomically; readers never observe a partial file.
func (s *FileStore) Put(result *AnalysisResult) error {
	if result == nil || !ValidID(result.ID) {
		return errors.ValidationError("result has an invalid id")
	}

	path := s.recordPath(result.ID)
	if _, err := os.Stat(path); err == nil {
		return storeError(errors.NewStd("result already exists"), errors.CategoryStorage, "put_result", "id", result.ID)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return storeError(err, errors.CategoryFileIO, "create_result_dir", "id", result.ID)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return storeError(err, errors.CategoryStorage, "marshal_result", "id", result.ID)
	}

	tmp, err := os.CreateTemp(dir, ".analysis-*.json")
	if err != nil {
		return storeError(err, errors.CategoryFileIO, "create_temp", "id", result.ID)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return storeError(err, errors.CategoryFileIO, "write_result", "id", result.ID)
	}
	if err := tmp.Chmod(filePermissions); err != nil {
		tmp.Close()
		return storeError(err, errors.CategoryFileIO, "chmod_result", "id", result.ID)
	}
	if err := tmp.Close(); err != nil {
		return storeError(err, errors.CategoryFileIO, "close_result", "id", result.ID)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return storeError(err, errors.CategoryFileIO, "rename_result", "id", result.ID)
	}

	s.log.Debug("Stored result",
		logger.String("id", result.ID),
		logger.Int("bytes", len(data)))
	return nil
}

// ListIDs returns ids of directories holding a record, sorted.
func (s *FileStore) ListIDs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, storeError(err, errors.CategoryFileIO, "list_results", "path", s.root)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !ValidID(entry.Name()) {
			continue
		}
		info, err := os.Stat(s.recordPath(entry.Name()))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		ids = append(ids, entry.Name())
	}
	slices.Sort(ids)
	return ids, nil
}

// WorkDir returns root/<id>, creating it if needed
func (s *FileStore) WorkDir(id string) (string, error) {
	if !ValidID(id) {
		return "", errors.ValidationError("invalid submission id")
	}
	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return "", storeError(err, errors.CategoryFileIO, "create_work_dir", "id", id)
	}
	return dir, nil
}

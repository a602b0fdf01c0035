package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/shohag/vpnboard/internal/apperrors"
	"github.com/shohag/vpnboard/internal/models"
)

const (
	dirMode  = 0o700
	fileMode = 0o600
)

// endpointRecord is the on-disk shape; it is the only type that encodes the
// connection URL.
type endpointRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	APIURL  string `json:"apiUrl"`
	AddedAt int64  `json:"addedAt"`
}

// FileStorage keeps the whole registry in one JSON file. Every mutation
// rewrites the file through a temp file and rename, holding mu for the full
// read-modify-write.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (s *FileStorage) Migrate(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return false, fmt.Errorf("%w: create data dir: %v", apperrors.ErrPersistence, err)
	}
	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("%w: stat %s: %v", apperrors.ErrPersistence, s.path, err)
	}
	if err := s.write(nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStorage) Close() error {
	return nil
}

func (s *FileStorage) ListEndpoints(ctx context.Context) ([]models.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStorage) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eps, err := s.read()
	if err != nil {
		return nil, err
	}
	for i := range eps {
		if eps[i].ID == id {
			return &eps[i], nil
		}
	}
	return nil, nil
}

func (s *FileStorage) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	eps, err := s.read()
	if err != nil {
		return err
	}
	for _, existing := range eps {
		if existing.ID == ep.ID {
			return fmt.Errorf("%w: duplicate endpoint id %s", apperrors.ErrPersistence, ep.ID)
		}
	}
	return s.write(append(eps, *ep))
}

func (s *FileStorage) RenameEndpoint(ctx context.Context, id, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eps, err := s.read()
	if err != nil {
		return false, err
	}
	for i := range eps {
		if eps[i].ID == id {
			eps[i].Name = name
			return true, s.write(eps)
		}
	}
	return false, nil
}

func (s *FileStorage) DeleteEndpoint(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	eps, err := s.read()
	if err != nil {
		return err
	}
	kept := eps[:0]
	for _, ep := range eps {
		if ep.ID != id {
			kept = append(kept, ep)
		}
	}
	if len(kept) == len(eps) {
		return nil
	}
	return s.write(kept)
}

// read returns an empty registry when the file does not exist yet.
func (s *FileStorage) read() ([]models.Endpoint, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Endpoint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", apperrors.ErrPersistence, s.path, err)
	}

	var records []endpointRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", apperrors.ErrPersistence, s.path, err)
	}

	eps := make([]models.Endpoint, 0, len(records))
	for _, r := range records {
		eps = append(eps, models.Endpoint{
			ID:            r.ID,
			Name:          r.Name,
			ConnectionURL: r.APIURL,
			AddedAt:       r.AddedAt,
		})
	}
	return eps, nil
}

func (s *FileStorage) write(eps []models.Endpoint) error {
	records := make([]endpointRecord, 0, len(eps))
	for _, ep := range eps {
		records = append(records, endpointRecord{
			ID:      ep.ID,
			Name:    ep.Name,
			APIURL:  ep.ConnectionURL,
			AddedAt: ep.AddedAt,
		})
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode registry: %v", apperrors.ErrPersistence, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("%w: create data dir: %v", apperrors.ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", apperrors.ErrPersistence, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: chmod temp file: %v", apperrors.ErrPersistence, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write temp file: %v", apperrors.ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync temp file: %v", apperrors.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", apperrors.ErrPersistence, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", apperrors.ErrPersistence, s.path, err)
	}
	return nil
}

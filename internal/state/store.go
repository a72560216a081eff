// Package state keeps the last committed bid of each auction on disk so an
// agent restarted mid-auction can resume escalating instead of starting over.
package state

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lox/autobid/internal/fileutil"
)

// Record is the persisted active bid of one auction.
type Record struct {
	Product     string    `yaml:"product,omitempty"`
	MyLastPrice int64     `yaml:"my_last_price"`
	UpdatedAt   time.Time `yaml:"updated_at"`
}

// FileStore writes one YAML file per auction under a directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Load returns the stored record, or nil when the auction has none.
func (s *FileStore) Load(auction string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec Record
	ok, err := fileutil.ReadYAML(s.path(auction), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *FileStore) Save(auction string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fileutil.WriteYAML(s.path(auction), rec); err != nil {
		return fmt.Errorf("save bid record for %s: %w", auction, err)
	}
	return nil
}

func (s *FileStore) Clear(auction string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fileutil.Remove(s.path(auction))
}

func (s *FileStore) path(auction string) string {
	return filepath.Join(s.dir, fileName(auction)+".yaml")
}

// fileName maps an auction name to a safe base name.
func fileName(auction string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(auction))
	if name == "" {
		return "auction"
	}
	return name
}

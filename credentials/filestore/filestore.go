// Package filestore persists credentials as a single JSON document on disk,
// readable only by the owning user. It stands in for platform keychains on
// systems where none is available.
package filestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/evolve-healthtech/evolve-go/credentials"
	"github.com/evolve-healthtech/evolve-go/users"
)

var _ credentials.Store = (*Store)(nil)

// document is the on-disk layout. The three keys are fixed so individual
// entries can be written or dropped independently.
type document struct {
	User         json.RawMessage `json:"user,omitempty"`
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
}

// Store is a file-backed credentials.Store.
type Store struct {
	lock sync.Mutex
	path string
}

// New creates a Store writing to path, creating the parent directory if
// needed.
func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("[filestore.New] path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.Wrap(err, "[filestore.New] create credentials directory")
		}
	}
	return &Store{path: path}, nil
}

// Save writes the full credential document atomically. Empty values delete
// their entries.
func (s *Store) Save(user *users.User, accessToken, refreshToken string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	doc := document{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if user != nil {
		raw, err := json.Marshal(user)
		if err != nil {
			return errors.Wrap(err, "[Store.Save] marshal user")
		}
		doc.User = raw
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[Store.Save] marshal document")
	}

	// Write to a temp file and rename so a crash mid-write never leaves a
	// truncated document behind.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "[Store.Save] write credentials file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "[Store.Save] replace credentials file")
	}
	return nil
}

// Load reads the persisted document. A missing file means no credentials. A
// document or user record that cannot be decoded is treated as absent rather
// than fatal.
func (s *Store) Load() (*users.User, string, string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", "", nil
		}
		return nil, "", "", errors.Wrap(err, "[Store.Load] read credentials file")
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("credentials file undecodable, treating as empty")
		return nil, "", "", nil
	}

	var user *users.User
	if len(doc.User) > 0 {
		var u users.User
		if err := json.Unmarshal(doc.User, &u); err != nil {
			log.Warn().Err(err).Msg("stored user record undecodable, treating as absent")
		} else {
			user = &u
		}
	}

	return user, doc.AccessToken, doc.RefreshToken, nil
}

// Clear removes the credentials file. Clearing an already-empty store is not
// an error.
func (s *Store) Clear() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[Store.Clear] remove credentials file")
	}
	return nil
}

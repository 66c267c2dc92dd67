package session

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/peterbourgon/diskv/v3"
)

// Store persists one JSON record per user. Writes go through a temp file and a
// rename, so readers in any process see either the old or the new record.
type Store struct {
	d       *diskv.Diskv
	baseDir string
}

// NewStore creates a store rooted at dir
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = "state"
	}
	tmp := filepath.Join(dir, ".tmp")
	if err := os.MkdirAll(tmp, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory %s: %w", dir, err)
	}

	return &Store{
		d: diskv.New(diskv.Options{
			BasePath:     dir,
			TempDir:      tmp,
			Transform:    func(string) []string { return nil },
			CacheSizeMax: 0, // another replica may have written since
		}),
		baseDir: dir,
	}, nil
}

func keyFor(userID int64) string {
	return "user_" + strconv.FormatInt(userID, 10) + ".json"
}

// Load returns the user's session, or a zero session when none can be read
func (s *Store) Load(userID int64) Session {
	key := keyFor(userID)
	if !s.d.Has(key) {
		return Session{}
	}

	data, err := s.d.Read(key)
	if err != nil {
		log.Printf("[session] failed to read %s in %s: %v", key, s.baseDir, err)
		return Session{}
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		log.Printf("[session] corrupt record %s, starting fresh: %v", key, err)
		return Session{}
	}
	return sess
}

// Save overwrites the user's session
func (s *Store) Save(userID int64, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.d.Write(keyFor(userID), data); err != nil {
		return fmt.Errorf("failed to write session for user %d in %s: %w", userID, s.baseDir, err)
	}
	return nil
}

// Delete removes the user's session. Deleting a missing session is not an error.
func (s *Store) Delete(userID int64) error {
	key := keyFor(userID)
	if !s.d.Has(key) {
		return nil
	}
	if err := s.d.Erase(key); err != nil {
		return fmt.Errorf("failed to delete session for user %d in %s: %w", userID, s.baseDir, err)
	}
	return nil
}

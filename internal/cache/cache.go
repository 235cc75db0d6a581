package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"careerdesk/internal/domain"
)

// Bucket names. Each slot is rewritten wholesale on save; there is no
// cross-slot transaction, so a crash between two saves can leave the
// conversation list and the message map mutually stale.
var (
	bucketConversations = []byte("conversations")
	bucketMessages      = []byte("messages")
	bucketProfile       = []byte("profile")
	bucketResume        = []byte("resume")
	bucketAnalysis      = []byte("analysis")
	bucketCredentials   = []byte("credentials")
)

var (
	keyList         = []byte("list")
	keyCurrent      = []byte("current")
	keyAccessToken  = []byte("access_token")
	keyRefreshToken = []byte("refresh_token")
)

// Slot identifies which cached record changed in a change notification.
type Slot string

const (
	SlotProfile  Slot = "profile"
	SlotResume   Slot = "resume"
	SlotAnalysis Slot = "analysis"
)

// ErrNotFound is returned when a single-record slot has never been written.
var ErrNotFound = errors.New("cache: record not found")

// Store is the file-backed snapshot cache. It mirrors the in-memory client
// state across restarts: conversation list, message map, profile, resume
// reference, last analysis report, and credentials.
type Store struct {
	db *bolt.DB

	mu   sync.Mutex
	subs []func(Slot)
}

// Open opens (creating if needed) the cache file at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("cache: path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cache: create directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Subscribe registers fn to be called after every successful write to a
// single-record slot. This stands in for the storage-change notification
// the browser client relied on for cross-view updates.
func (s *Store) Subscribe(fn func(Slot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) notify(slot Slot) {
	s.mu.Lock()
	subs := append([]func(Slot){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(slot)
	}
}

// LoadConversations reads the persisted conversation list. A missing or
// malformed slot yields an empty list, never an error the caller must halt
// on: the cache is best-effort.
func (s *Store) LoadConversations() ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		if b == nil {
			return nil
		}
		v := b.Get(keyList)
		if len(v) == 0 {
			return nil
		}
		if err := json.Unmarshal(v, &out); err != nil {
			// Malformed snapshot: start fresh rather than fail the load.
			out = nil
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache: load conversations: %w", err)
	}
	if out == nil {
		out = []domain.Conversation{}
	}
	return out, nil
}

// SaveConversations overwrites the conversation slot with the given list.
func (s *Store) SaveConversations(list []domain.Conversation) error {
	if list == nil {
		list = []domain.Conversation{}
	}
	enc, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("cache: encode conversations: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketConversations)
		if err != nil {
			return err
		}
		return b.Put(keyList, enc)
	})
	if err != nil {
		return fmt.Errorf("cache: save conversations: %w", err)
	}
	return nil
}

// LoadMessages reads the persisted message map. Malformed per-conversation
// entries are skipped instead of failing the whole load.
func (s *Store) LoadMessages() (domain.MessageMap, error) {
	out := domain.MessageMap{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var msgs []domain.Message
			if len(v) > 0 {
				if err := json.Unmarshal(v, &msgs); err != nil {
					return nil
				}
			}
			out[string(k)] = msgs
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("cache: load messages: %w", err)
	}
	return out, nil
}

// SaveMessages overwrites the message slot to reflect the given map exactly.
func (s *Store) SaveMessages(m domain.MessageMap) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketMessages) != nil {
			if err := tx.DeleteBucket(bucketMessages); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(bucketMessages)
		if err != nil {
			return err
		}
		for id, msgs := range m {
			enc, err := json.Marshal(msgs)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(id), enc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: save messages: %w", err)
	}
	return nil
}

// Profile returns the cached account profile.
func (s *Store) Profile() (domain.Profile, error) {
	var p domain.Profile
	if err := s.getRecord(bucketProfile, &p); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

// SaveProfile persists the profile and notifies subscribers.
func (s *Store) SaveProfile(p domain.Profile) error {
	if err := s.putRecord(bucketProfile, p); err != nil {
		return err
	}
	s.notify(SlotProfile)
	return nil
}

// Resume returns the cached resume artifact reference.
func (s *Store) Resume() (domain.ResumeArtifact, error) {
	var a domain.ResumeArtifact
	if err := s.getRecord(bucketResume, &a); err != nil {
		return domain.ResumeArtifact{}, err
	}
	return a, nil
}

// SaveResume persists the resume reference and notifies subscribers.
func (s *Store) SaveResume(a domain.ResumeArtifact) error {
	if err := s.putRecord(bucketResume, a); err != nil {
		return err
	}
	s.notify(SlotResume)
	return nil
}

// Analysis returns the last cached self-analysis report.
func (s *Store) Analysis() (domain.AnalysisReport, error) {
	var r domain.AnalysisReport
	if err := s.getRecord(bucketAnalysis, &r); err != nil {
		return domain.AnalysisReport{}, err
	}
	return r, nil
}

// SaveAnalysis persists the self-analysis report and notifies subscribers.
func (s *Store) SaveAnalysis(r domain.AnalysisReport) error {
	if err := s.putRecord(bucketAnalysis, r); err != nil {
		return err
	}
	s.notify(SlotAnalysis)
	return nil
}

// AccessToken returns the stored bearer credential, or an empty string when
// none has been saved. Classification of a missing credential is left to
// the caller.
func (s *Store) AccessToken() (string, error) {
	return s.getCredential(keyAccessToken)
}

// RefreshToken returns the stored refresh credential, if any.
func (s *Store) RefreshToken() (string, error) {
	return s.getCredential(keyRefreshToken)
}

// SaveCredentials stores the bearer and refresh credentials.
func (s *Store) SaveCredentials(access, refresh string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketCredentials)
		if err != nil {
			return err
		}
		if err := b.Put(keyAccessToken, []byte(access)); err != nil {
			return err
		}
		return b.Put(keyRefreshToken, []byte(refresh))
	})
	if err != nil {
		return fmt.Errorf("cache: save credentials: %w", err)
	}
	return nil
}

func (s *Store) getCredential(key []byte) (string, error) {
	var out string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		if b == nil {
			return nil
		}
		out = string(b.Get(key))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("cache: read credential: %w", err)
	}
	return out, nil
}

func (s *Store) getRecord(bucket []byte, dst any) error {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get(keyCurrent); v != nil {
			raw = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: read %s: %w", bucket, err)
	}
	if raw == nil {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("cache: decode %s: %w", bucket, err)
	}
	return nil
}

func (s *Store) putRecord(bucket []byte, v any) error {
	enc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", bucket, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		return b.Put(keyCurrent, enc)
	})
	if err != nil {
		return fmt.Errorf("cache: write %s: %w", bucket, err)
	}
	return nil
}

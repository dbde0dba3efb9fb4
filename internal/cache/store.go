// Package cache implements the persistent key/value store shared by the
// dependency ledger and the path handlers.
//
// Three tiers exist. Permanent entries are carried forward indefinitely.
// Standard entries are rewritten every run; the values committed by the
// previous run stay readable through Previous. Volatile entries live in
// memory only and are cleared at the start of every run.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Tier selects a cache namespace.
type Tier int

const (
	Permanent Tier = iota
	Standard
	Volatile
)

func (t Tier) String() string {
	switch t {
	case Permanent:
		return "permanent"
	case Standard:
		return "standard"
	case Volatile:
		return "volatile"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

const blobVersion = 1

type blob struct {
	Version   int                        `json:"version"`
	Permanent map[string]json.RawMessage `json:"permanent"`
	Standard  map[string]json.RawMessage `json:"standard"`
}

// Store is the in-memory view of the cache for one run at a time.
type Store struct {
	mu        sync.RWMutex
	backend   Backend
	permanent map[string]json.RawMessage
	standard  map[string]json.RawMessage
	previous  map[string]json.RawMessage
	volatile  map[string]any
	restored  bool
	logger    *slog.Logger
}

// New creates a store on top of backend.
func New(backend Backend) *Store {
	return &Store{
		backend:   backend,
		permanent: map[string]json.RawMessage{},
		standard:  map[string]json.RawMessage{},
		previous:  map[string]json.RawMessage{},
		volatile:  map[string]any{},
		logger:    slog.Default(),
	}
}

// Open creates a store for path: ".db", ".sqlite" and ".sqlite3" files use
// SQLite, any other path a plain file and an empty path memory only.
func Open(path string) (*Store, error) {
	var (
		backend Backend
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case "":
		if path == "" {
			backend = NewMemoryBackend()
			break
		}
		backend, err = NewFileBackend(path)
	case ".db", ".sqlite", ".sqlite3":
		backend, err = NewSQLiteBackend(path)
	default:
		backend, err = NewFileBackend(path)
	}
	if err != nil {
		return nil, errors.CacheError("cannot open cache store").
			WithCause(err).
			WithContext("path", path).
			Fatal().
			Build()
	}
	return New(backend), nil
}

// WithLogger sets a custom logger.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	s.logger = logger
	return s
}

// Load reads the committed blob. A missing blob starts an empty cache. An
// undecodable blob is logged and also starts an empty cache, which makes
// every node dirty. A backend failure is fatal.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.backend.Load(ctx)
	if err != nil {
		return errors.CacheError("cache store unreadable").WithCause(err).Fatal().Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.permanent = map[string]json.RawMessage{}
	s.standard = map[string]json.RawMessage{}
	s.previous = map[string]json.RawMessage{}
	s.volatile = map[string]any{}
	s.restored = false
	if data == nil {
		return nil
	}

	var b blob
	if err := json.Unmarshal(data, &b); err != nil || b.Version != blobVersion {
		if err == nil {
			err = fmt.Errorf("unsupported cache version %d", b.Version)
		}
		s.logger.Warn("Discarding undecodable cache, rebuilding everything", logfields.Error(err))
		return nil
	}
	if b.Permanent != nil {
		s.permanent = b.Permanent
	}
	if b.Standard != nil {
		s.previous = b.Standard
	}
	s.restored = true
	return nil
}

// Restored reports whether the last Load found a usable committed blob.
func (s *Store) Restored() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restored
}

// BeginRun clears the current standard and volatile tiers.
func (s *Store) BeginRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.standard = map[string]json.RawMessage{}
	s.volatile = map[string]any{}
}

// Put stores value under key in tier. Permanent and standard values are
// JSON encoded immediately; volatile values are kept as is.
func (s *Store) Put(tier Tier, key string, value any) error {
	if tier == Volatile {
		s.mu.Lock()
		s.volatile[key] = value
		s.mu.Unlock()
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.CacheError("cannot encode cache value").
			WithCause(err).
			WithContext("key", key).
			WithContext("tier", tier.String()).
			Build()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted(tier)[key] = raw
	return nil
}

// Get decodes the value stored under key into out. For the volatile tier
// out must be a pointer to the stored value's type.
func (s *Store) Get(tier Tier, key string, out any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tier == Volatile {
		v, ok := s.volatile[key]
		if !ok {
			return false, nil
		}
		return true, assign(out, v)
	}
	raw, ok := s.persisted(tier)[key]
	if !ok {
		return false, nil
	}
	return true, decode(key, raw, out)
}

// Previous decodes the standard value committed by the previous run.
func (s *Store) Previous(key string, out any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.previous[key]
	if !ok {
		return false, nil
	}
	return true, decode(key, raw, out)
}

// Delete removes key from tier.
func (s *Store) Delete(tier Tier, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tier == Volatile {
		delete(s.volatile, key)
		return
	}
	delete(s.persisted(tier), key)
}

// Keys returns the sorted keys of tier.
func (s *Store) Keys(tier Tier) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	if tier == Volatile {
		for k := range s.volatile {
			keys = append(keys, k)
		}
	} else {
		for k := range s.persisted(tier) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Commit persists the permanent and the current standard tier. Afterwards
// the committed standard values become the previous ones.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(blob{Version: blobVersion, Permanent: s.permanent, Standard: s.standard})
	if err != nil {
		return errors.CacheError("cannot encode cache").WithCause(err).Build()
	}
	if err := s.backend.Save(ctx, data); err != nil {
		return errors.CacheError("cannot write cache").WithCause(err).Build()
	}
	s.previous = s.standard
	s.standard = map[string]json.RawMessage{}
	s.restored = true
	return nil
}

// Clear removes the persisted blob and resets all tiers.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Remove(ctx); err != nil {
		return errors.CacheError("cannot remove cache").WithCause(err).Build()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permanent = map[string]json.RawMessage{}
	s.standard = map[string]json.RawMessage{}
	s.previous = map[string]json.RawMessage{}
	s.volatile = map[string]any{}
	s.restored = false
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) persisted(tier Tier) map[string]json.RawMessage {
	if tier == Permanent {
		return s.permanent
	}
	return s.standard
}

func decode(key string, raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.CacheError("cannot decode cache value").
			WithCause(err).
			WithContext("key", key).
			Build()
	}
	return nil
}

func assign(out, v any) error {
	dst := reflect.ValueOf(out)
	if dst.Kind() != reflect.Pointer || dst.IsNil() {
		return errors.CacheError("volatile target must be a non-nil pointer").Build()
	}
	val := reflect.ValueOf(v)
	if !val.IsValid() {
		dst.Elem().Set(reflect.Zero(dst.Elem().Type()))
		return nil
	}
	if !val.Type().AssignableTo(dst.Elem().Type()) {
		return errors.CacheError(fmt.Sprintf("volatile value is %T, not %s", v, dst.Elem().Type())).Build()
	}
	dst.Elem().Set(val)
	return nil
}

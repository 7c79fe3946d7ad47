// Package analytics persists interaction records and derives dashboard views.
//
// The store is a single durable append-only NDJSON log. Appends are
// serialized by a mutex and use O_APPEND, so concurrent writers cannot lose
// each other's records; tabular (CSV) and JSON views are reconstructed from
// the log on demand instead of being maintained as independent write paths.
package analytics

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"articled/internal/common/fsutil"
	"articled/pkg/types"
)

const logFileName = "interactions.ndjson"

// Store is the interaction log. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
	now  func() time.Time
}

// NewStore opens (or creates) the log under dir.
func NewStore(dir string, log zerolog.Logger) (*Store, error) {
	if err := fsutil.EnsureDir(dir); err != nil {
		return nil, err
	}
	expanded, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	return &Store{
		path: filepath.Join(expanded, logFileName),
		log:  log,
		now:  time.Now,
	}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Record appends one interaction and returns it with id and timestamp set.
func (s *Store) Record(model, prompt, response string, failed bool) (types.Interaction, error) {
	rec := types.Interaction{
		ID:        uuid.NewString(),
		Timestamp: s.now().Format(time.RFC3339),
		Model:     model,
		Prompt:    prompt,
		Response:  response,
		Failed:    failed,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return types.Interaction{}, err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return types.Interaction{}, err
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return types.Interaction{}, err
	}
	return rec, nil
}

// ReadAll returns all records in append order. A missing file is an empty
// log; corrupt lines are skipped with a diagnostic rather than surfaced, so
// a damaged log degrades to a shorter (possibly empty) view.
func (s *Store) ReadAll() []types.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("interaction log unreadable")
		}
		return nil
	}
	defer f.Close()

	var out []types.Interaction
	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec types.Interaction
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("interaction log scan failed")
	}
	if skipped > 0 {
		s.log.Warn().Int("skipped", skipped).Str("path", s.path).Msg("corrupt interaction log lines skipped")
	}
	return out
}

// Clear deletes the backing file. Idempotent.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

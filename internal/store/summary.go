package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	pherrors "github.com/phasergun/phasergun/internal/errors"
)

// summaryTokenLimit caps summaries at the document head.
const summaryTokenLimit = 250

// Summarize extracts the leading tokens of a document, collapsed to single
// spaces. For structured documents the head carries the title, purpose, and
// scope, which is what tier-1 overviews need.
func Summarize(text string) string {
	tokens := strings.Fields(text)
	if len(tokens) > summaryTokenLimit {
		tokens = tokens[:summaryTokenLimit]
	}
	return strings.Join(tokens, " ")
}

// SummaryEntry is one document's overview.
type SummaryEntry struct {
	Hash        string    `json:"hash"`
	Summary     string    `json:"summary"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// SummaryStore maps file names to their document summaries.
type SummaryStore struct {
	entries map[string]SummaryEntry
}

// NewSummaryStore creates an empty summary store.
func NewSummaryStore() *SummaryStore {
	return &SummaryStore{entries: make(map[string]SummaryEntry)}
}

// Put records the summary for a file.
func (s *SummaryStore) Put(fileName, contentHash, summary string) {
	s.entries[fileName] = SummaryEntry{
		Hash:        contentHash,
		Summary:     summary,
		GeneratedAt: time.Now().UTC(),
	}
}

// Get returns the summary entry for a file.
func (s *SummaryStore) Get(fileName string) (SummaryEntry, bool) {
	e, ok := s.entries[fileName]
	return e, ok
}

// Len returns the number of summarized files.
func (s *SummaryStore) Len() int {
	return len(s.entries)
}

// FileNames returns the summarized file names in byte order, which is the
// order summaries are presented in.
func (s *SummaryStore) FileNames() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes the summary store atomically to path.
func (s *SummaryStore) Save(path string) error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		return pherrors.IOError(fmt.Sprintf("encode summary store %s", path), err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return pherrors.New(pherrors.ErrCodeWriteFailed, fmt.Sprintf("write summary store %s", path), err)
	}
	return nil
}

// LoadSummaries reads a summary store from path.
func LoadSummaries(path string) (*SummaryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pherrors.New(pherrors.ErrCodeFileNotFound, fmt.Sprintf("summary store %s", path), err)
		}
		return nil, pherrors.IOError(fmt.Sprintf("read summary store %s", path), err)
	}

	entries := make(map[string]SummaryEntry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, pherrors.CacheCorrupt(fmt.Sprintf("decode summary store %s", path), err)
	}
	return &SummaryStore{entries: entries}, nil
}

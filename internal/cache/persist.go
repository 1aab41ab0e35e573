// Package cache keeps the last successful record set of every source, in
// memory for readers and in a Persister across runs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sanction-watch/internal/model"
)

// ErrCorruption marks a persisted entry that cannot be trusted. The Store
// never returns it; it deletes the entry and reports a miss.
var ErrCorruption = eris.New("cache: corrupted entry")

// Persister is the key-value backend behind a Store. Keys are source IDs and
// values are opaque encoded entries.
type Persister interface {
	// Load returns the stored payload and whether the key exists.
	Load(ctx context.Context, sourceID string) ([]byte, bool, error)
	Save(ctx context.Context, sourceID string, payload []byte) error
	Delete(ctx context.Context, sourceID string) error
	// List returns every stored key in ascending order.
	List(ctx context.Context) ([]string, error)
	Close() error
}

const envelopeVersion = 1

type envelope struct {
	Version  int             `json:"v"`
	Checksum string          `json:"sha256"`
	Entry    json.RawMessage `json:"entry"`
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func encodeEntry(e *model.CacheEntry) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: encode %s", e.SourceID)
	}
	out, err := json.Marshal(envelope{Version: envelopeVersion, Checksum: checksum(body), Entry: body})
	if err != nil {
		return nil, eris.Wrapf(err, "cache: encode envelope %s", e.SourceID)
	}
	return out, nil
}

// decodeEntry verifies the envelope and that every record belongs to sourceID.
func decodeEntry(sourceID string, data []byte) (*model.CacheEntry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, eris.Wrapf(ErrCorruption, "cache: %s: undecodable envelope: %v", sourceID, err)
	}
	if env.Version != envelopeVersion {
		return nil, eris.Wrapf(ErrCorruption, "cache: %s: unsupported envelope version %d", sourceID, env.Version)
	}
	if checksum(env.Entry) != env.Checksum {
		return nil, eris.Wrapf(ErrCorruption, "cache: %s: checksum mismatch", sourceID)
	}

	var e model.CacheEntry
	if err := json.Unmarshal(env.Entry, &e); err != nil {
		return nil, eris.Wrapf(ErrCorruption, "cache: %s: undecodable entry: %v", sourceID, err)
	}
	if e.SourceID != sourceID {
		return nil, eris.Wrapf(ErrCorruption, "cache: key %s holds entry for %s", sourceID, e.SourceID)
	}
	for _, r := range e.Records {
		if r.SourceID != sourceID {
			return nil, eris.Wrapf(ErrCorruption, "cache: %s: record %s belongs to %s", sourceID, r.ExternalID, r.SourceID)
		}
	}
	return &e, nil
}

// Memory is a process-local Persister.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemory returns an empty Memory persister.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, sourceID string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[sourceID]
	return b, ok, nil
}

func (m *Memory) Save(_ context.Context, sourceID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[sourceID] = append([]byte(nil), payload...)
	return nil
}

func (m *Memory) Delete(_ context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, sourceID)
	return nil
}

func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Close() error { return nil }

// Package payloadindex keeps a collection's payload field indexes in sync
// with the fixed set the query and branch-visibility paths depend on.
package payloadindex

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/codelens/indexcore/internal/vectorstoreclient"
)

// Field names a payload field the query path filters or sorts on.
type Field struct {
	Name string
	Type vectorstoreclient.FieldType
}

// Required is the fixed set of payload indexes every collection must carry.
// type/path back file lookups and deletes; git_branch and hidden_branches
// back branch-visibility filtering; file_mtime backs timestamp-based
// incremental reconciliation.
var Required = []Field{
	{Name: "type", Type: vectorstoreclient.FieldKeyword},
	{Name: "path", Type: vectorstoreclient.FieldKeyword},
	{Name: "git_branch", Type: vectorstoreclient.FieldKeyword},
	{Name: "file_mtime", Type: vectorstoreclient.FieldInteger},
	{Name: "hidden_branches", Type: vectorstoreclient.FieldKeyword},
}

// indexClient is the slice of vectorstoreclient.Client this package needs,
// narrowed to an interface so tests can substitute a fake.
type indexClient interface {
	CreatePayloadIndex(ctx context.Context, collection, fieldName string, fieldType vectorstoreclient.FieldType) error
	ListPayloadIndexes(ctx context.Context, collection string) ([]string, error)
}

// Manager ensures Required exists on a collection, with retry.
type Manager struct {
	client  indexClient
	logger  zerolog.Logger
	backoff []time.Duration
}

// New constructs a Manager with the default 1s, 2s retry schedule.
func New(client indexClient, logger zerolog.Logger) *Manager {
	return &Manager{client: client, logger: logger, backoff: []time.Duration{time.Second, 2 * time.Second}}
}

// EnsureIndexes creates every missing index in Required, retrying each
// individually up to len(backoff)+1 times. CreatePayloadIndex already
// treats "already exists" as success, so this is safe to call on every
// indexing run, not just the first.
func (m *Manager) EnsureIndexes(ctx context.Context, collection string) error {
	for _, f := range Required {
		if err := m.createWithRetry(ctx, collection, f); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) createWithRetry(ctx context.Context, collection string, f Field) error {
	var lastErr error
	attempts := len(m.backoff) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		err := m.client.CreatePayloadIndex(ctx, collection, f.Name, f.Type)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < len(m.backoff) {
			m.logger.Warn().Str("field", f.Name).Int("attempt", attempt+1).Err(err).Msg("payload index creation failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.backoff[attempt]):
			}
		}
	}
	return lastErr
}

// Status reports, for every Required field, whether it currently has an
// index, used by a diagnostics/health-check context rather than a hot path.
func (m *Manager) Status(ctx context.Context, collection string) (map[string]bool, error) {
	existing, err := m.client.ListPayloadIndexes(ctx, collection)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	status := make(map[string]bool, len(Required))
	for _, f := range Required {
		status[f.Name] = have[f.Name]
	}
	return status, nil
}

// QueryHint returns the subset of keys that lack an index, so a caller
// about to filter on them can warn that the query will fall back to an
// unindexed scan instead of failing silently slow.
func (m *Manager) QueryHint(ctx context.Context, collection string, keys []string) ([]string, error) {
	status, err := m.Status(ctx, collection)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, k := range keys {
		if !status[k] {
			missing = append(missing, k)
		}
	}
	return missing, nil
}

// Rebuild re-issues index creation for every Required field, used after an
// operator suspects a collection's schema drifted (e.g. restored from an
// older snapshot missing a field introduced later).
func (m *Manager) Rebuild(ctx context.Context, collection string) error {
	m.logger.Info().Str("collection", collection).Msg("rebuilding payload indexes")
	return m.EnsureIndexes(ctx, collection)
}

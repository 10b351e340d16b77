package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	blobcore "questionbank/internal/blob/core"
	"questionbank/pkg/domain"
)

// ErrArchiveDisabled is returned by archive reads and exports when the
// service has no blob store.
var ErrArchiveDisabled = errors.New("archive store not configured")

// ArchivedEntity is the document written for every deleted entity.
type ArchivedEntity struct {
	Collection string        `json:"collection"`
	DeletedAt  time.Time     `json:"deleted_at"`
	Entity     domain.Entity `json:"entity"`
}

// Snapshot is the document written by Export.
type Snapshot struct {
	Collection string          `json:"collection"`
	ExportedAt time.Time       `json:"exported_at"`
	Entities   []domain.Entity `json:"entities"`
}

// DeletedKey returns the archive key of a deleted entity.
func DeletedKey(collection string, e domain.Entity) string {
	return fmt.Sprintf("%s/deleted/%s-%s.json", collection, e.SequenceID, e.InternalID)
}

// SnapshotKey returns the key of a snapshot taken at t.
func SnapshotKey(collection string, t time.Time) string {
	return fmt.Sprintf("%s/snapshots/%d.json", collection, t.UnixNano())
}

func (s *Service) archiveDeleted(ctx context.Context, spec CollectionSpec, e domain.Entity) (string, error) {
	if s.archive == nil {
		return "", nil
	}
	key := DeletedKey(spec.Name, e)
	doc := ArchivedEntity{Collection: spec.Name, DeletedAt: s.clock.Now(), Entity: e}
	if err := s.putJSON(ctx, key, doc, map[string]string{"collection": spec.Name, "sequence_id": e.SequenceID}); err != nil {
		s.logger.Warn("archive of deleted entity failed",
			zap.String("collection", spec.Name),
			zap.String("sequence_id", e.SequenceID),
			zap.String("key", key),
			zap.Error(err))
		return key, err
	}
	return key, nil
}

// Archived lists archived deletions of a collection ordered by key.
func (s *Service) Archived(ctx context.Context, collection string) ([]blobcore.Info, error) {
	spec, err := s.registry.Lookup(collection)
	if err != nil {
		return nil, err
	}
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return s.archive.List(ctx, spec.Name+"/deleted/")
}

// Export writes the collection, in creation order, to the archive store and
// returns the snapshot key.
func (s *Service) Export(ctx context.Context, collection string) (string, error) {
	spec, err := s.registry.Lookup(collection)
	if err != nil {
		return "", err
	}
	if s.archive == nil {
		return "", ErrArchiveDisabled
	}
	var key string
	err = s.run(ctx, "export", spec, func(ctx context.Context, log *zap.Logger) error {
		var entities []domain.Entity
		err := s.store.View(ctx, spec.Name, func(v domain.TransactionView) error {
			entities = v.FindAllOrderedByCreation()
			return nil
		})
		if err != nil {
			return err
		}
		if entities == nil {
			entities = []domain.Entity{}
		}
		now := s.clock.Now()
		key = SnapshotKey(spec.Name, now)
		if err := s.putJSON(ctx, key, Snapshot{Collection: spec.Name, ExportedAt: now, Entities: entities}, map[string]string{"collection": spec.Name}); err != nil {
			return err
		}
		log.Info("collection exported", zap.String("key", key), zap.Int("entities", len(entities)))
		return nil
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *Service) putJSON(ctx context.Context, key string, v any, metadata map[string]string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.archive.Put(ctx, key, bytes.NewReader(data), blobcore.PutOptions{ContentType: "application/json", Metadata: metadata})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

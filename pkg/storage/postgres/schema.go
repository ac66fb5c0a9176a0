package postgres

import (
	"context"
	"fmt"
)

// EnsureSchema creates both tables and their indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.DB.WithContext(ctx).AutoMigrate(&SnapshotRecord{}, &HistoryRecord{}); err != nil {
		return fmt.Errorf("auto-migrate market tables: %w", err)
	}
	return nil
}

package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-peerfinder-backend/internal/blob"
)

// Snapshot is one stored blob. The queue keeps exactly one row (keyed by the
// configured snapshot key), but the schema is generic on purpose so tests and
// future stores can share the table.
type Snapshot struct {
	Key       string    `gorm:"type:varchar(255);primaryKey"`
	Data      []byte    `gorm:"type:blob;not null"`
	ETag      string    `gorm:"column:etag;type:char(64);not null"`
	UpdatedAt time.Time
}

// TableName returns the database table name for Snapshot.
func (Snapshot) TableName() string { return "snapshots" }

// SQLiteBackend implements blob.Backend on a GORM handle. The conditional
// write runs inside a transaction with the ETag comparison expressed in the
// WHERE clause, so concurrent writers race on the database, not in memory.
type SQLiteBackend struct {
	db *gorm.DB
}

// NewSQLiteBackend wraps db as a blob backend. The snapshot table must have
// been migrated (see AutoMigrate).
func NewSQLiteBackend(db *gorm.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

// Get implements blob.Backend.
func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, string, error) {
	var row Snapshot
	err := b.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", blob.ErrNotFound
		}
		return nil, "", err
	}
	return row.Data, row.ETag, nil
}

// Put implements blob.Backend.
func (b *SQLiteBackend) Put(ctx context.Context, key string, data []byte, expectedETag string) (string, error) {
	newETag := blob.ContentETag(data)

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if expectedETag == "" {
			var count int64
			if err := tx.Model(&Snapshot{}).Where("key = ?", key).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return blob.ErrETagMismatch
			}
			return tx.Create(&Snapshot{
				Key:       key,
				Data:      data,
				ETag:      newETag,
				UpdatedAt: time.Now().UTC(),
			}).Error
		}

		res := tx.Model(&Snapshot{}).
			Where("key = ? AND etag = ?", key, expectedETag).
			Updates(map[string]any{
				"data":       data,
				"etag":       newETag,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return blob.ErrETagMismatch
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return newETag, nil
}

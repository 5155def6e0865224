package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type entryRow struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	Action  string    `gorm:"size:64;not null;index"`
	Outcome string    `gorm:"size:16;not null"`
	Detail  string    `gorm:"type:text"`
	At      time.Time `gorm:"not null;index"`
}

func (entryRow) TableName() string { return "admin_audit_entries" }

// GormStore persists entries through gorm.
type GormStore struct {
	db *gorm.DB
}

// Connect opens and pings a postgres database, then migrates the audit table.
func Connect(ctx context.Context, dsn string) (*GormStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s, err := NewGormStore(db)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&entryRow{}); err != nil {
		return nil, fmt.Errorf("migrate audit entries: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Record(ctx context.Context, e Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	row := entryRow{
		ID:      e.ID,
		Action:  string(e.Action),
		Outcome: string(e.Outcome),
		Detail:  e.Detail,
		At:      e.At,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

func (s *GormStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	q := s.db.WithContext(ctx).Order("at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []entryRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{
			ID:      r.ID,
			Action:  Action(r.Action),
			Outcome: Outcome(r.Outcome),
			Detail:  r.Detail,
			At:      r.At.UTC(),
		})
	}
	return out, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Store = (*GormStore)(nil)

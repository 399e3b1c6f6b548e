package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"stakepool/core/events"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// Record is one persisted ledger event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"index;not null"`
	Account    string    `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	EmittedAt  time.Time `gorm:"index;not null"`
}

// TableName pins the table name independent of gorm's pluralisation.
func (Record) TableName() string { return "stakepool_events" }

// Entry is the decoded form of a Record returned to API clients.
type Entry struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	EmittedAt  time.Time         `json:"emittedAt"`
}

// Journal appends every committed ledger event to a SQL table. It implements
// events.Emitter so it can be attached to the engine directly.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq uint64
}

// Open connects to dsn. postgres:// and postgresql:// DSNs use the Postgres
// driver; anything else is handed to the embedded SQLite driver.
func Open(dsn string, logger *slog.Logger) (*Journal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("journal: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return New(db, logger)
}

// New migrates the journal table on db and resumes the sequence counter.
func New(db *gorm.DB, logger *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	var last Record
	err := db.Order("sequence DESC").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("journal: resume sequence: %w", err)
	}
	return &Journal{db: db, logger: logger, now: time.Now, seq: last.Sequence}, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Failures are logged; the ledger operation
// that produced the event has already committed.
func (j *Journal) Emit(ev events.Event) {
	if j == nil || ev == nil {
		return
	}
	if _, err := j.Append(context.Background(), ev); err != nil {
		j.logger.Error("journal: append event",
			slog.String("type", ev.EventType()),
			slog.Any("error", err))
	}
}

// Append stores ev and returns the persisted entry.
func (j *Journal) Append(ctx context.Context, ev events.Event) (*Entry, error) {
	rendered := events.Render(ev)
	if rendered == nil {
		return nil, errors.New("journal: nil event")
	}
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return nil, fmt.Errorf("journal: encode attributes: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	record := Record{
		ID:         uuid.New(),
		Sequence:   j.seq + 1,
		Type:       rendered.Type,
		Account:    rendered.Account(),
		Attributes: string(attrs),
		EmittedAt:  j.now().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("journal: insert: %w", err)
	}
	j.seq = record.Sequence
	return decode(record)
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	var records []Record
	if err := j.db.WithContext(ctx).Order("sequence DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	return decodeAll(records)
}

// ForAccount returns up to limit entries mentioning addr, newest first.
func (j *Journal) ForAccount(ctx context.Context, addr string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	var records []Record
	err := j.db.WithContext(ctx).
		Where("account = ?", addr).
		Order("sequence DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	return decodeAll(records)
}

func decodeAll(records []Record) ([]Entry, error) {
	out := make([]Entry, 0, len(records))
	for _, record := range records {
		entry, err := decode(record)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, nil
}

func decode(record Record) (*Entry, error) {
	attrs := map[string]string{}
	if record.Attributes != "" {
		if err := json.Unmarshal([]byte(record.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("journal: decode attributes of %s: %w", record.ID, err)
		}
	}
	return &Entry{
		ID:         record.ID.String(),
		Sequence:   record.Sequence,
		Type:       record.Type,
		Attributes: attrs,
		EmittedAt:  record.EmittedAt,
	}, nil
}

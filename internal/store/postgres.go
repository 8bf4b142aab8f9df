package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/tournament-voting-backend/internal/engine"
	"github.com/DoyleJ11/tournament-voting-backend/internal/logging"
)

type Postgres struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Connect opens the database, verifies it answers and migrates the event
// table.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
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

	p := NewPostgres(db, logger)
	if err := p.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return p, nil
}

func NewPostgres(db *gorm.DB, logger *zap.Logger) *Postgres {
	return &Postgres{db: db, logger: logging.OrNop(logger)}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if err := p.db.WithContext(ctx).AutoMigrate(&eventModel{}); err != nil {
		return fmt.Errorf("migrate tournament events: %w", err)
	}
	return nil
}

func (p *Postgres) Append(ctx context.Context, code string, seq, version int, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]eventModel, len(events))
	now := time.Now().UTC()
	for i, e := range events {
		row, err := eventModelFromEvent(code, seq+i, version, e)
		if err != nil {
			return err
		}
		row.CreatedAt = now
		rows[i] = row
	}

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored int64
		if err := tx.Model(&eventModel{}).Where("code = ?", code).Count(&stored).Error; err != nil {
			return err
		}
		if int(stored) != seq {
			return ErrConflict
		}
		return tx.Create(&rows).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), isUniqueViolation(err):
		// a concurrent writer that counted the same seq loses on the unique index
		return ErrConflict
	default:
		return p.logError("append_events_failed", err, zap.String("code", code), zap.Int("seq", seq))
	}
}

func (p *Postgres) Load(ctx context.Context, code string) (Stream, error) {
	var rows []eventModel
	err := p.db.WithContext(ctx).
		Where("code = ?", code).
		Order("seq ASC").
		Find(&rows).
		Error
	if err != nil {
		return Stream{}, p.logError("load_events_failed", err, zap.String("code", code))
	}
	if len(rows) == 0 {
		return Stream{}, ErrNotFound
	}

	st := Stream{Events: make([]engine.Event, len(rows))}
	for i, row := range rows {
		e, err := row.toEvent()
		if err != nil {
			return Stream{}, p.logError("decode_event_failed", err, zap.String("code", code), zap.Int("seq", row.Seq))
		}
		st.Events[i] = e
		st.Version = max(st.Version, row.Version)
	}
	return st, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Postgres) logError(event string, err error, fields ...zap.Field) error {
	fields = append(fields, zap.String("event", event), zap.Error(err))
	p.logger.Error("tournament event store operation failed", fields...)
	return err
}

type eventModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Code      string    `gorm:"column:code;not null;uniqueIndex:idx_tournament_events_code_seq"`
	Seq       int       `gorm:"column:seq;not null;uniqueIndex:idx_tournament_events_code_seq"`
	Version   int       `gorm:"column:version;not null"`
	Type      string    `gorm:"column:type;not null"`
	Payload   []byte    `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (eventModel) TableName() string {
	return "tournament_events"
}

func eventModelFromEvent(code string, seq, version int, e engine.Event) (eventModel, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return eventModel{}, fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return eventModel{
		ID:      uuid.NewString(),
		Code:    code,
		Seq:     seq,
		Version: version,
		Type:    string(e.Type),
		Payload: payload,
	}, nil
}

func (m eventModel) toEvent() (engine.Event, error) {
	var e engine.Event
	if err := json.Unmarshal(m.Payload, &e); err != nil {
		return engine.Event{}, fmt.Errorf("decode %s event: %w", m.Type, err)
	}
	return e, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ EventStore = (*Postgres)(nil)

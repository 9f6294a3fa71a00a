package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/jumptrain/internal/domain/model"
)

// EvaluationModel represents the evaluation_records table.
type EvaluationModel struct {
	ID            uint      `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID     string    `gorm:"column:session_id;not null;index:idx_evaluation_session"`
	ParticipantID string    `gorm:"column:participant_id;not null;index:idx_evaluation_participant"`
	ProcedureID   string    `gorm:"column:procedure_id;not null"`
	EvaluationID  string    `gorm:"column:evaluation_id;not null"`
	TimelineID    string    `gorm:"column:timeline_id;not null"`
	Outcome       string    `gorm:"column:outcome;not null"`
	Score         float64   `gorm:"column:score;not null;default:0"`
	Weight        float64   `gorm:"column:weight;not null;default:1"`
	RecordedAt    time.Time `gorm:"column:recorded_at;not null"`
}

// TableName implements gorm's tabler.
func (EvaluationModel) TableName() string {
	return "evaluation_records"
}

// Open connects to the configured database and migrates the schema.
// driver is "sqlite" (dsn is a path or ":memory:") or "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDB, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite" {
		// Every sqlite connection to ":memory:" is a separate database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&EvaluationModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate evaluation records: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GormStore is the database-backed Store.
type GormStore struct {
	db   *gorm.DB
	opts options
}

// NewGormStore wraps an open connection.
func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	return &GormStore{db: db, opts: defaults(opts)}
}

// Save implements Store. The session's previous rows are replaced in one
// transaction.
func (s *GormStore) Save(ctx context.Context, participantID, sessionID string, records []model.EvaluationRecord) error {
	if sessionID == "" {
		return ErrMissingSession
	}
	rows := make([]EvaluationModel, len(records))
	for i, r := range records {
		rows[i] = EvaluationModel{
			SessionID:     sessionID,
			ParticipantID: participantID,
			ProcedureID:   r.ProcedureID,
			EvaluationID:  r.EvaluationID,
			TimelineID:    r.TimelineID,
			Outcome:       string(r.Outcome),
			Score:         r.Score,
			Weight:        r.Weight,
			RecordedAt:    r.RecordedAt,
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&EvaluationModel{}).Error; err != nil {
			return fmt.Errorf("clear session %s: %w", sessionID, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert session %s: %w", sessionID, err)
		}
		return nil
	})
}

// List implements Store.
func (s *GormStore) List(ctx context.Context, q Query) ([]model.EvaluationRecord, error) {
	q, err := normalize(q, s.opts.maxLimit)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&EvaluationModel{})
	if q.SessionID != "" {
		query = query.Where("session_id = ?", q.SessionID)
	}
	if q.ParticipantID != "" {
		query = query.Where("participant_id = ?", q.ParticipantID)
	}

	var models []EvaluationModel
	if err := query.Order("recorded_at ASC").Order("id ASC").Limit(q.Limit).Find(&models).Error; err != nil {
		return nil, err
	}

	out := make([]model.EvaluationRecord, len(models))
	for i, m := range models {
		out[i] = model.EvaluationRecord{
			SessionID:     m.SessionID,
			ParticipantID: m.ParticipantID,
			ProcedureID:   m.ProcedureID,
			EvaluationID:  m.EvaluationID,
			TimelineID:    m.TimelineID,
			Outcome:       model.Outcome(m.Outcome),
			Score:         m.Score,
			Weight:        m.Weight,
			RecordedAt:    m.RecordedAt,
		}
	}
	return out, nil
}

// Sessions implements Store.
func (s *GormStore) Sessions(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&EvaluationModel{}).Distinct("session_id").Count(&n).Error
	return int(n), err
}

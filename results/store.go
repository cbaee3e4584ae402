// Package results records aggregate rows of analysis runs in a SQL database.
package results

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lucasjlepore/empatica-analyzer/aggregate"
)

// ScopeAll marks rows averaged over every subject.
const ScopeAll = "all"

// Run is one pipeline execution.
type Run struct {
	RunID         string `gorm:"primaryKey;type:uuid"`
	Sensor        string `gorm:"not null"`
	// SegmentWidthS is the requested width in seconds, 0 for whole activities.
	SegmentWidthS float64 `gorm:"not null"`
	Baseline      string
	CreatedAt     time.Time
	Rows          []RowRecord `gorm:"foreignKey:RunID;references:RunID"`
}

// RowRecord is one aggregate row. Scope is a subject id or ScopeAll. Missing
// statistics are stored as NULL.
type RowRecord struct {
	ID                   uint   `gorm:"primaryKey"`
	RunID                string `gorm:"not null;index;type:uuid"`
	Scope                string `gorm:"not null;index"`
	Activity             string `gorm:"not null"`
	MeanPeakCount        *float64
	MeanSegmentDurationS *float64
	PeaksPerMinute       *float64
	MeanMaxPeakValue     *float64
	N                    int
}

// Store persists runs through gorm.
type Store struct {
	DB *gorm.DB
}

// Open connects with driver "sqlite" or "postgres" and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported results driver %q (expected sqlite|postgres)", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}
	if err := db.AutoMigrate(&Run{}, &RowRecord{}); err != nil {
		return nil, fmt.Errorf("migrate results db: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun stores the rows grouped by scope under a new run id.
func (s *Store) SaveRun(ctx context.Context, run Run, rows map[string][]aggregate.Row) (string, error) {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	run.Rows = nil
	for scope, list := range rows {
		for _, r := range list {
			run.Rows = append(run.Rows, RowRecord{
				RunID:                run.RunID,
				Scope:                scope,
				Activity:             r.Activity,
				MeanPeakCount:        nullable(r.MeanPeakCount),
				MeanSegmentDurationS: nullable(r.MeanSegmentDurationS),
				PeaksPerMinute:       nullable(r.PeaksPerMinute),
				MeanMaxPeakValue:     nullable(r.MeanMaxPeakValue),
				N:                    r.N,
			})
		}
	}
	if err := s.DB.WithContext(ctx).Create(&run).Error; err != nil {
		return "", fmt.Errorf("save run %s: %w", run.RunID, err)
	}
	return run.RunID, nil
}

// Rows returns the rows of a run for one scope, ordered by insertion.
func (s *Store) Rows(ctx context.Context, runID, scope string) ([]aggregate.Row, error) {
	var records []RowRecord
	err := s.DB.WithContext(ctx).
		Where("run_id = ? AND scope = ?", runID, scope).
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load rows of run %s: %w", runID, err)
	}
	out := make([]aggregate.Row, len(records))
	for i, r := range records {
		out[i] = aggregate.Row{
			Activity:             r.Activity,
			MeanPeakCount:        value(r.MeanPeakCount),
			MeanSegmentDurationS: value(r.MeanSegmentDurationS),
			PeaksPerMinute:       value(r.PeaksPerMinute),
			MeanMaxPeakValue:     value(r.MeanMaxPeakValue),
			N:                    r.N,
		}
	}
	return out, nil
}

// GetRun returns the run without its rows.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	run := &Run{}
	if err := s.DB.WithContext(ctx).First(run, "run_id = ?", runID).Error; err != nil {
		return nil, fmt.Errorf("run not found: %w", err)
	}
	return run, nil
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

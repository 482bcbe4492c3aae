package verdicts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/triage-backend/internal/platform/ctxutil"
	"github.com/yungbote/triage-backend/internal/platform/logger"
)

// WriteObserver is told about every append outcome.
type WriteObserver interface {
	IncVerdictWrite(status string)
}

// Open picks the GORM dialector from the DSN: postgres:// or postgresql://
// selects postgres; file:, sqlite: or :memory: selects sqlite.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	var dialector gorm.Dialector
	isSQLite := true
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
		isSQLite = false
	case strings.HasPrefix(dsn, "sqlite:"):
		dialector = sqlite.Open(strings.TrimPrefix(dsn, "sqlite:"))
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("verdicts: unsupported dsn scheme %q", redactDSN(dsn))
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("verdicts: open: %w", err)
	}
	if isSQLite {
		// sqlite allows one writer, and every :memory: connection is its own database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("verdicts: open: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		return dsn[:i+3] + "..."
	}
	if len(dsn) > 8 {
		return dsn[:8] + "..."
	}
	return dsn
}

// Store appends verdict records. A nil *Store is a valid no-op log.
type Store struct {
	db       *gorm.DB
	log      *logger.Logger
	observer WriteObserver
}

func NewStore(db *gorm.DB, log *logger.Logger, obs WriteObserver) (*Store, error) {
	if db == nil {
		return nil, nil
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("verdicts: migrate: %w", err)
	}
	return &Store{db: db, log: log.With("repo", "VerdictStore"), observer: obs}, nil
}

// Append writes rec. Failures are logged and swallowed: the audit log must
// never fail a verdict request.
func (s *Store) Append(ctx context.Context, rec *Record, details any) {
	if s == nil || rec == nil {
		return
	}
	if rec.RequestID == "" {
		rec.RequestID = ctxutil.RequestID(ctx)
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			s.log.Warn("verdict details not serialisable", "kind", rec.Kind, "error", err)
		} else {
			rec.Details = datatypes.JSON(raw)
		}
	}
	status := "success"
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		status = "failed"
		s.log.Error("verdict append failed", "kind", rec.Kind, "alert_id", rec.AlertID, "error", err)
	}
	if s.observer != nil {
		s.observer.IncVerdictWrite(status)
	}
}

// Recent lists the newest records, optionally filtered by alert id.
func (s *Store) Recent(ctx context.Context, alertID string, limit int) ([]*Record, error) {
	if s == nil {
		return []*Record{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if alertID != "" {
		q = q.Where("alert_id = ?", alertID)
	}
	var out []*Record
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("verdicts: list: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

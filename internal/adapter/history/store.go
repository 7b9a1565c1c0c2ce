package history

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/berfenger/smlmeter2mqtt/internal/core/port"
	"github.com/berfenger/smlmeter2mqtt/pkg/sml"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const DRIVER_NAME = "pgx"

var tableNameRegexp = regexp.MustCompile("^[a-zA-Z_][a-zA-Z0-9_]*$")

var _ port.SnapshotStore = (*Store)(nil)

// Store appends every published snapshot to a PostgreSQL table.
type Store struct {
	db     *sql.DB
	table  string
	logger *zap.Logger
}

func Open(dsn, table string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open(DRIVER_NAME, dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	store, err := NewStore(db, table, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewStore(db *sql.DB, table string, logger *zap.Logger) (*Store, error) {
	if !tableNameRegexp.MatchString(table) {
		return nil, fmt.Errorf("invalid history table name %q", table)
	}
	return &Store{
		db:     db,
		table:  table,
		logger: logger.With(zap.String("table", table)),
	}, nil
}

// Migrate creates the snapshot table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	captured_at TIMESTAMPTZ NOT NULL,
	vendor_id TEXT NOT NULL,
	device_id TEXT NOT NULL,
	obis_1_8_0 NUMERIC,
	obis_1_8_1 NUMERIC,
	obis_2_8_0 NUMERIC,
	obis_2_8_1 NUMERIC,
	obis_15_7_0 NUMERIC,
	direction TEXT NOT NULL
)`, s.table))
	if err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	s.logger.Debug("history table ready")
	return nil
}

func (s *Store) Save(ctx context.Context, snapshot *sml.MeterSnapshot, direction sml.PowerDirection) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s
	(captured_at, vendor_id, device_id, obis_1_8_0, obis_1_8_1, obis_2_8_0, obis_2_8_1, obis_15_7_0, direction)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, s.table),
		snapshot.CapturedAt,
		snapshot.VendorID,
		snapshot.DeviceID,
		snapshot.Obis180,
		snapshot.Obis181,
		snapshot.Obis280,
		snapshot.Obis281,
		snapshot.Obis1570,
		direction.String(),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

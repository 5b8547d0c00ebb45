package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	// Registers mysql driver.
	_ "github.com/go-sql-driver/mysql"
	// Registers pgx driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/milkywaybrain/bitfeeds/internal/config"
	"github.com/pkg/errors"
	// Registers sqlite driver.
	_ "modernc.org/sqlite"
)

// dialect holds the differences between supported sql databases.
type dialect struct {
	name   string
	driver string

	// decimalType is the column type of prices and volumes.
	decimalType string

	// upsert builds the insert or replace statement keyed on id.
	upsert func(table string, cols []string) string
}

var (
	sqliteDialect = dialect{
		name:   "sqlite",
		driver: "sqlite",

		// NUMERIC affinity would turn decimal text into REAL.
		decimalType: "TEXT",

		upsert: func(table string, cols []string) string {
			return "INSERT OR REPLACE INTO " + table + "(" + strings.Join(cols, ",") + ") VALUES (" + marks(len(cols), false) + ")"
		},
	}
	mysqlDialect = dialect{
		name:        "mysql",
		driver:      "mysql",
		decimalType: "DECIMAL(36,18)",

		upsert: func(table string, cols []string) string {
			return "REPLACE INTO " + table + "(" + strings.Join(cols, ",") + ") VALUES (" + marks(len(cols), false) + ")"
		},
	}
	postgresDialect = dialect{
		name:        "postgres",
		driver:      "pgx",
		decimalType: "NUMERIC",

		upsert: func(table string, cols []string) string {
			var sb strings.Builder
			sb.WriteString("INSERT INTO " + table + "(" + strings.Join(cols, ",") + ") VALUES (" + marks(len(cols), true) + ") ON CONFLICT (id) DO UPDATE SET ")
			first := true
			for _, c := range cols {
				if c == "id" {
					continue
				}
				if !first {
					sb.WriteString(",")
				}
				first = false
				sb.WriteString(c + "=EXCLUDED." + c)
			}
			return sb.String()
		},
	}
)

func marks(n int, numbered bool) string {
	m := make([]string, n)
	for i := range m {
		if numbered {
			m[i] = "$" + strconv.Itoa(i+1)
		} else {
			m[i] = "?"
		}
	}
	return strings.Join(m, ",")
}

var (
	snapshotCols = []string{
		"id", "exchange", "instrument",
		"b1", "b2", "b3", "b4", "b5",
		"a1", "a2", "a3", "a4", "a5",
		"bq1", "bq2", "bq3", "bq4", "bq5",
		"aq1", "aq2", "aq3", "aq4", "aq5",
		"order_date_time",
	}
	tradeCols = []string{
		"id", "exchange", "instrument", "trade_id", "trade_px", "trade_volume", "trade_side", "trade_date_time",
	}
)

// SQL is for connecting and inserting data to a sql database.
// Statements given to Execute run inside a transaction which is opened on
// first use and closed by Commit.
type SQL struct {
	DB      *sql.DB
	dialect dialect
	timeout time.Duration

	mu sync.Mutex
	tx *sql.Tx
}

// InitSQLite opens the sqlite database file at the configured path.
func InitSQLite(ctx context.Context, cfg *config.SQLite) (*SQL, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	db, err := sql.Open(sqliteDialect.driver, cfg.Path)
	if err != nil {
		return nil, err
	}

	// Every new connection of an in memory database is a different database.
	db.SetMaxOpenConns(1)
	return connectSQL(ctx, db, sqliteDialect, cfg.ReqTimeoutSec)
}

// InitMySQL initializes mysql connection with configured values.
func InitMySQL(ctx context.Context, cfg *config.MySQL) (*SQL, error) {
	dataSourceName := cfg.User + ":" + cfg.Password + cfg.URL + "/" + cfg.Schema
	db, err := sql.Open(mysqlDialect.driver, dataSourceName)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(time.Second * time.Duration(cfg.ConnMaxLifetimeSec))
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	return connectSQL(ctx, db, mysqlDialect, cfg.ReqTimeoutSec)
}

// InitPostgres initializes postgres connection with configured values.
func InitPostgres(ctx context.Context, cfg *config.Postgres) (*SQL, error) {
	db, err := sql.Open(postgresDialect.driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(time.Second * time.Duration(cfg.ConnMaxLifetimeSec))
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	return connectSQL(ctx, db, postgresDialect, cfg.ReqTimeoutSec)
}

func connectSQL(ctx context.Context, db *sql.DB, d dialect, reqTimeoutSec int) (*SQL, error) {
	s := &SQL{
		DB:      db,
		dialect: d,
		timeout: time.Duration(reqTimeoutSec) * time.Second,
	}
	pingCtx, cancel := s.reqCtx(ctx)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, d.name+" ping")
	}
	return s, nil
}

func (s *SQL) reqCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// Name returns the storage name.
func (s *SQL) Name() string { return s.dialect.name }

// Execute runs the statement in the current transaction.
func (s *SQL) Execute(ctx context.Context, stmt string, args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execute(ctx, stmt, args...)
}

func (s *SQL) execute(ctx context.Context, stmt string, args ...interface{}) error {
	if s.tx == nil {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		s.tx = tx
	}
	reqCtx, cancel := s.reqCtx(ctx)
	defer cancel()
	_, err := s.tx.ExecContext(reqCtx, stmt, args...)
	if err != nil {
		_ = s.tx.Rollback()
		s.tx = nil
		return err
	}
	return nil
}

// Commit commits the current transaction, if any.
func (s *SQL) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit()
}

func (s *SQL) commit() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	return err
}

// FetchOne returns the first row of the query, or nil if there is none.
func (s *SQL) FetchOne(ctx context.Context, query string, args ...interface{}) ([]interface{}, error) {
	rows, err := s.FetchAll(ctx, query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// FetchAll returns all rows of the query.
func (s *SQL) FetchAll(ctx context.Context, query string, args ...interface{}) ([][]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reqCtx, cancel := s.reqCtx(ctx)
	defer cancel()

	var (
		rows *sql.Rows
		err  error
	)
	if s.tx != nil {
		rows, err = s.tx.QueryContext(reqCtx, query, args...)
	} else {
		rows, err = s.DB.QueryContext(reqCtx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// EnsureSnapshotTable creates the snapshot and trade tables if they don't exist
// and returns the last persisted sequences.
func (s *SQL) EnsureSnapshotTable(ctx context.Context, table string) (Resume, error) {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS " + table + " (id BIGINT PRIMARY KEY, exchange VARCHAR(32), instrument VARCHAR(32)")
	for _, c := range snapshotCols[3 : len(snapshotCols)-1] {
		sb.WriteString(", " + c + " " + s.dialect.decimalType)
	}
	sb.WriteString(", order_date_time VARCHAR(32))")

	tradesTable := TradesTableName(table)
	tradesStmt := "CREATE TABLE IF NOT EXISTS " + tradesTable + " (id BIGINT PRIMARY KEY, exchange VARCHAR(32), instrument VARCHAR(32)," +
		" trade_id VARCHAR(64), trade_px " + s.dialect.decimalType + ", trade_volume " + s.dialect.decimalType + ", trade_side INT, trade_date_time VARCHAR(32))"

	s.mu.Lock()
	err := s.execute(ctx, sb.String())
	if err == nil {
		err = s.execute(ctx, tradesStmt)
	}
	if err == nil {
		err = s.commit()
	}
	s.mu.Unlock()
	if err != nil {
		return Resume{}, errors.Wrap(err, "create snapshot table "+table)
	}

	var resume Resume
	row, err := s.FetchOne(ctx, "SELECT COALESCE(MAX(id), 0) FROM "+table)
	if err != nil {
		return Resume{}, errors.Wrap(err, "resume "+table)
	}
	if row != nil {
		if resume.OrderBookSeq, err = toUint64(row[0]); err != nil {
			return Resume{}, err
		}
	}
	row, err = s.FetchOne(ctx, "SELECT id, trade_id FROM "+tradesTable+" ORDER BY id DESC LIMIT 1")
	if err != nil {
		return Resume{}, errors.Wrap(err, "resume "+tradesTable)
	}
	if row != nil {
		if resume.TradeSeq, err = toUint64(row[0]); err != nil {
			return Resume{}, err
		}
		resume.ExchTradeID = toString(row[1])
	}
	return resume, nil
}

// InsertOrderBook upserts the snapshot keyed on its sequence.
func (s *SQL) InsertOrderBook(ctx context.Context, snap Snapshot) error {
	args := make([]interface{}, 0, len(snapshotCols))
	args = append(args, int64(snap.Sequence), snap.Exchange, snap.Instrument)
	for _, l := range snap.Depth.Bids {
		args = append(args, l.Price.String())
	}
	for _, l := range snap.Depth.Asks {
		args = append(args, l.Price.String())
	}
	for _, l := range snap.Depth.Bids {
		args = append(args, l.Volume.String())
	}
	for _, l := range snap.Depth.Asks {
		args = append(args, l.Volume.String())
	}
	args = append(args, snap.Depth.DateTime.UTC().Format(DateTimeFormat))
	return s.upsert(ctx, snap.Table, snapshotCols, args)
}

// InsertTrade upserts the trade keyed on its sequence.
func (s *SQL) InsertTrade(ctx context.Context, r TradeRecord) error {
	args := []interface{}{
		int64(r.Sequence), r.Exchange, r.Instrument, r.Trade.TradeID,
		r.Trade.Price.String(), r.Trade.Volume.String(), int(r.Trade.Side),
		r.Trade.DateTime.UTC().Format(DateTimeFormat),
	}
	return s.upsert(ctx, TradesTableName(r.Table), tradeCols, args)
}

func (s *SQL) upsert(ctx context.Context, table string, cols []string, args []interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.execute(ctx, s.dialect.upsert(table, cols), args...); err != nil {
		return err
	}
	return s.commit()
}

// Close closes the database.
func (s *SQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	return s.DB.Close()
}

func toUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case int64:
		return uint64(n), nil
	case int32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case float64:
		return uint64(n), nil
	case []byte:
		return strconv.ParseUint(string(n), 10, 64)
	case string:
		return strconv.ParseUint(n, 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected sequence type %T", v)
	}
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case []byte:
		return string(s)
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

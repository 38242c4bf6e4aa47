package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	_ "modernc.org/sqlite"

	"github.com/jgoulah/gridview/pkg/models"
)

// DB wraps the database connection. It caches backend datasets so the
// dashboard can be browsed offline, and serves them back as a view source.
type DB struct {
	conn *sql.DB
}

// HourSummary describes the cached dataset of one hour
type HourSummary struct {
	Hour       int
	Points     int
	Overloaded int
	FetchedAt  time.Time
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps writes serialized
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS grid_points (
		hour INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		cadaster TEXT NOT NULL,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		address TEXT,
		predicted_load REAL NOT NULL,
		base_load REAL NOT NULL,
		max_load REAL NOT NULL,
		is_overloaded INTEGER NOT NULL DEFAULT 0,
		extra TEXT,
		fetched_at TEXT NOT NULL,
		PRIMARY KEY (hour, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_points_cadaster ON grid_points(hour, cadaster);

	CREATE TABLE IF NOT EXISTS chargers (
		hour INTEGER NOT NULL,
		cadaster TEXT NOT NULL,
		seq INTEGER NOT NULL,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		car_model TEXT,
		charge_need REAL NOT NULL,
		optimized_charge REAL NOT NULL,
		address TEXT,
		decrease_percent REAL NOT NULL,
		fetched_at TEXT NOT NULL,
		PRIMARY KEY (hour, cadaster, seq)
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// ReplacePoints stores the points of one hour, discarding what was cached before.
// Dataset order is preserved.
func (db *DB) ReplacePoints(ctx context.Context, hour int, points []models.GridPoint) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM grid_points WHERE hour = ?`, hour); err != nil {
		return fmt.Errorf("clearing points for hour %d: %w", hour, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO grid_points (hour, seq, cadaster, lat, lon, address, predicted_load, base_load, max_load, is_overloaded, extra, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	fetchedAt := time.Now().UTC().Format(time.RFC3339)
	for i, p := range points {
		extra, err := encodeExtra(p.Extra)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, hour, i, p.Cadaster, p.Position.Lat, p.Position.Lon, p.Address,
			p.PredictedLoad, p.BaseLoad, p.MaxLoad, p.IsOverloaded, extra, fetchedAt); err != nil {
			return fmt.Errorf("inserting point %s: %w", p.Cadaster, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing points: %w", err)
	}
	return nil
}

// ReplaceChargers stores the chargers of one overloaded point, discarding what was cached before
func (db *DB) ReplaceChargers(ctx context.Context, q models.ChargerQuery, records []models.ChargerRecord) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chargers WHERE hour = ? AND cadaster = ?`, q.Hour, q.Cadaster); err != nil {
		return fmt.Errorf("clearing chargers for %s: %w", q.Cadaster, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO chargers (hour, cadaster, seq, lat, lon, car_model, charge_need, optimized_charge, address, decrease_percent, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	fetchedAt := time.Now().UTC().Format(time.RFC3339)
	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, q.Hour, q.Cadaster, i, r.Position.Lat, r.Position.Lon, r.CarModel,
			r.ChargeNeed, r.OptimizedCharge, r.Address, r.DecreasePercent, fetchedAt); err != nil {
			return fmt.Errorf("inserting charger: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chargers: %w", err)
	}
	return nil
}

// FetchPoints returns the cached points of one hour in dataset order
func (db *DB) FetchPoints(ctx context.Context, hour int) ([]models.GridPoint, error) {
	query := `
	SELECT cadaster, lat, lon, address, predicted_load, base_load, max_load, is_overloaded, extra
	FROM grid_points
	WHERE hour = ?
	ORDER BY seq
	`

	rows, err := db.conn.QueryContext(ctx, query, hour)
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}
	defer rows.Close()

	var results []models.GridPoint
	for rows.Next() {
		p := models.GridPoint{Hour: hour}
		var address, extra sql.NullString

		if err := rows.Scan(&p.Cadaster, &p.Position.Lat, &p.Position.Lon, &address,
			&p.PredictedLoad, &p.BaseLoad, &p.MaxLoad, &p.IsOverloaded, &extra); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		p.Address = address.String

		p.Extra, err = decodeExtra(extra.String)
		if err != nil {
			return nil, err
		}

		results = append(results, p)
	}

	return results, rows.Err()
}

// FetchChargers returns the cached chargers for one point. The load figures of
// the query only matter to the backend's optimization, so the cache keys on
// hour and cadaster.
func (db *DB) FetchChargers(ctx context.Context, q models.ChargerQuery) ([]models.ChargerRecord, error) {
	query := `
	SELECT lat, lon, car_model, charge_need, optimized_charge, address, decrease_percent
	FROM chargers
	WHERE hour = ? AND cadaster = ?
	ORDER BY seq
	`

	rows, err := db.conn.QueryContext(ctx, query, q.Hour, q.Cadaster)
	if err != nil {
		return nil, fmt.Errorf("querying chargers: %w", err)
	}
	defer rows.Close()

	var results []models.ChargerRecord
	for rows.Next() {
		r := models.ChargerRecord{Cadaster: q.Cadaster}
		var carModel, address sql.NullString

		if err := rows.Scan(&r.Position.Lat, &r.Position.Lon, &carModel, &r.ChargeNeed,
			&r.OptimizedCharge, &address, &r.DecreasePercent); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.CarModel = carModel.String
		r.Address = address.String

		results = append(results, r)
	}

	return results, rows.Err()
}

// ListHours summarizes the cached hours, ordered by hour
func (db *DB) ListHours(ctx context.Context) ([]HourSummary, error) {
	query := `
	SELECT hour, COUNT(*), SUM(is_overloaded), MAX(fetched_at)
	FROM grid_points
	GROUP BY hour
	ORDER BY hour
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying hours: %w", err)
	}
	defer rows.Close()

	var results []HourSummary
	for rows.Next() {
		var s HourSummary
		var fetchedAt string
		if err := rows.Scan(&s.Hour, &s.Points, &s.Overloaded, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		s.FetchedAt, err = time.Parse(time.RFC3339, fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing fetched_at: %w", err)
		}

		results = append(results, s)
	}

	return results, rows.Err()
}

// HasHour checks if points are cached for a given hour
func (db *DB) HasHour(ctx context.Context, hour int) (bool, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM grid_points WHERE hour = ?`, hour).Scan(&n); err != nil {
		return false, fmt.Errorf("counting points: %w", err)
	}
	return n > 0, nil
}

func encodeExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "", nil
	}
	data, err := json.Marshal(extra, json.Deterministic(true))
	if err != nil {
		return "", fmt.Errorf("encoding extra attributes: %w", err)
	}
	return string(data), nil
}

func decodeExtra(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var extra map[string]any
	if err := json.Unmarshal([]byte(s), &extra); err != nil {
		return nil, fmt.Errorf("decoding extra attributes: %w", err)
	}
	return extra, nil
}

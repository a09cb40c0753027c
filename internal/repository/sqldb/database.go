package sqldb

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Database wraps the SQL database connection
type Database struct {
	db     *sql.DB
	driver string
}

// New creates a new database connection and initializes the schema.
// dsn is a file path for sqlite and a connection string for postgres.
func New(driver, dsn string) (*Database, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// A single connection keeps sqlite writers from tripping over each other
		db.SetMaxOpenConns(1)

		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	database := &Database{db: db, driver: driver}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// GetDB returns the underlying database connection
func (d *Database) GetDB() *sql.DB {
	return d.db
}

// Driver returns the name of the SQL driver in use
func (d *Database) Driver() string {
	return d.driver
}

// rebind rewrites ? placeholders to $n for postgres
func (d *Database) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// placeholders returns "?, ?, ..." with n entries
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// initSchema creates the database tables
func (d *Database) initSchema() error {
	schema := sqliteSchema
	if d.driver == DriverPostgres {
		schema = postgresSchema
	}

	_, err := d.db.Exec(schema)
	return err
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		username TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT,
		role TEXT NOT NULL,
		trainer_id INTEGER,
		email TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS workout_days (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id INTEGER NOT NULL,
		trainer_id INTEGER NOT NULL,
		day_index INTEGER NOT NULL,
		name TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (student_id) REFERENCES users(id),
		UNIQUE(student_id, day_index)
	);

	CREATE TABLE IF NOT EXISTS workout_sessions (
		id TEXT PRIMARY KEY,
		student_id INTEGER NOT NULL,
		trainer_id INTEGER NOT NULL,
		workout_day_id INTEGER NOT NULL,
		day_index INTEGER NOT NULL,
		status TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		FOREIGN KEY (workout_day_id) REFERENCES workout_days(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_workout_sessions_one_active
		ON workout_sessions(student_id, workout_day_id)
		WHERE status IN ('em_andamento', 'pausado');
	CREATE INDEX IF NOT EXISTS idx_workout_sessions_student_status ON workout_sessions(student_id, status);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		recipient_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		payload TEXT,
		is_read INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, is_read);
	`

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		username TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT,
		role TEXT NOT NULL,
		trainer_id BIGINT,
		email TEXT,
		created_at TIMESTAMPTZ DEFAULT now(),
		updated_at TIMESTAMPTZ DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS workout_days (
		id BIGSERIAL PRIMARY KEY,
		student_id BIGINT NOT NULL REFERENCES users(id),
		trainer_id BIGINT NOT NULL,
		day_index INTEGER NOT NULL,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT now(),
		UNIQUE(student_id, day_index)
	);

	CREATE TABLE IF NOT EXISTS workout_sessions (
		id TEXT PRIMARY KEY,
		student_id BIGINT NOT NULL,
		trainer_id BIGINT NOT NULL,
		workout_day_id BIGINT NOT NULL REFERENCES workout_days(id),
		day_index INTEGER NOT NULL,
		status TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_workout_sessions_one_active
		ON workout_sessions(student_id, workout_day_id)
		WHERE status IN ('em_andamento', 'pausado');
	CREATE INDEX IF NOT EXISTS idx_workout_sessions_student_status ON workout_sessions(student_id, status);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		recipient_id BIGINT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		payload TEXT,
		is_read INTEGER DEFAULT 0,
		created_at TIMESTAMPTZ DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, is_read);
	`

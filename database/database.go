package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Dialect holds the few statements that differ between MySQL and SQLite.
type Dialect struct {
	Name         string
	InsertIgnore string
	// Timestamp is the column type for sub-second timestamps.
	Timestamp string
}

var (
	MySQL  = Dialect{Name: "mysql", InsertIgnore: "INSERT IGNORE INTO", Timestamp: "DATETIME(6)"}
	SQLite = Dialect{Name: "sqlite", InsertIgnore: "INSERT OR IGNORE INTO", Timestamp: "DATETIME"}
)

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "mysql":
		return MySQL, nil
	case "sqlite":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func Connect(driver, dsn string) (*sql.DB, error) {
	if _, err := DialectFor(driver); err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if driver == "sqlite" {
		// A single connection keeps in-memory databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	logrus.WithField("driver", driver).Info("Database connected successfully")
	return db, nil
}

func CreateTables(db *sql.DB, dialect Dialect) error {
	ts := dialect.Timestamp
	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id           VARCHAR(36) PRIMARY KEY,
			email        VARCHAR(255) NOT NULL UNIQUE,
			display_name VARCHAR(100) NOT NULL,
			avatar_url   VARCHAR(255) NOT NULL DEFAULT '',
			password     VARCHAR(255) NOT NULL,
			created_at   ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS relationships (
			user_id    VARCHAR(36) PRIMARY KEY,
			doc        TEXT NOT NULL,
			version    BIGINT NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id          VARCHAR(36) PRIMARY KEY,
			sender_id   VARCHAR(36) NOT NULL,
			receiver_id VARCHAR(36) NOT NULL,
			text        TEXT,
			image_url   VARCHAR(255) NOT NULL DEFAULT '',
			is_read     BOOLEAN NOT NULL DEFAULT FALSE,
			created_at  ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX idx_messages_pair ON messages (sender_id, receiver_id, created_at)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			if isDuplicateIndex(err) {
				continue
			}
			return err
		}
	}

	logrus.Info("Database tables created successfully")
	return nil
}

func isDuplicateIndex(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1061
	}
	return strings.Contains(err.Error(), "already exists")
}

package store

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open connects to the configured database. Two drivers are supported:
// embedded sqlite for single-box deployments and postgres for everything
// else.
func Open(driver, url string) (*sql.DB, error) {
	var name string
	switch driver {
	case "sqlite", "sqlite3", "":
		name = "sqlite"
	case "postgres", "pgx":
		name = "pgx"
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	db, err := sql.Open(name, url)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if name == "sqlite" {
		// modernc sqlite misbehaves with concurrent writers.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

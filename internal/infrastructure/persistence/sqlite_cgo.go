//go:build !purego

package persistence

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// sqliteDialector uses mattn/go-sqlite3 (CGO) by default, matching the
// teacher's original driver choice.
func sqliteDialector(dsn string) gorm.Dialector {
	return sqlite.Open(dsn)
}

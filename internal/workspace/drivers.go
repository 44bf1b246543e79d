package workspace

import (
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3" (cgo)
	_ "modernc.org/sqlite"          // registers "sqlite" (pure Go)
)

// dataSource maps a configured driver to a database/sql driver name and DSN.
func dataSource(driver, path string) (string, string, error) {
	switch driver {
	case "", "sqlite":
		return "sqlite", path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
	case "sqlite3":
		return "sqlite3", path + "?_journal_mode=WAL&_busy_timeout=5000", nil
	default:
		return "", "", fmt.Errorf("unsupported storage driver %q", driver)
	}
}

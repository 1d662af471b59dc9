// Package migrations embeds the SQL schema migrations for every supported dialect.
package migrations

import (
	"embed"
	"fmt"
)

// FS holds the migration files, one directory per dialect.
//
//go:embed postgresql/*.sql mysql/*.sql sqlite/*.sql
var FS embed.FS

// Dir returns the directory inside FS that holds the migrations for driver.
func Dir(driver string) (string, error) {
	switch driver {
	case "postgres":
		return "postgresql", nil
	case "mysql":
		return "mysql", nil
	case "sqlite":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// Package migrations embeds the SQL schema of the write journal.
//
// Importing it registers the files with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/wolf-bridge/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}

// Package migrations embeds SQL migration files into the binary.
//
// coolpanel applies these at startup so the settings table exists before
// the mode controller restores its state.
package migrations

import (
	"embed"

	"github.com/nerrad567/coolpanel/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}

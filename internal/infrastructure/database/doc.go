// Package database opens the SQLite file that backs the write journal and
// applies its schema migrations.
//
// Migrations are embedded SQL files registered through MigrationsFS (see
// the migrations package). They are applied in version order, each in its
// own transaction, and recorded in schema_migrations.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database

// Package database provides SQLite storage for relayctl.
//
// The database holds the audit trail of control actions and the history
// of relay config revisions. It is optional: with database.enabled off,
// relayctl runs without either.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive. Each version ships an .up.sql and a .down.sql.
package database

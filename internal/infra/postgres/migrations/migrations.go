package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the schema for the question bank and the durable session store.
var Migrations = migrate.NewMigrations()

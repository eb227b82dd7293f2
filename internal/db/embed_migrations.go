package db

import "embed"

// MigrationFS holds the schema for the documents store and the print history.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS

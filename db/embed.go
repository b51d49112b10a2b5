// Package db provides the embedded migration files.
package db

import "embed"

// Migrations holds the golang-migrate up/down scripts under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS

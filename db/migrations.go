// Package db carries the SQL schema migrations.
package db

import "embed"

// Migrations holds the forward migrations, applied in lexical order.
//
//go:embed migrations/*.up.sql
var Migrations embed.FS

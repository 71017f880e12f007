// Package db embeds the coffee-shop schema applied at startup.
package db

import _ "embed"

// Schema creates the products, accounts and orders tables. Every statement
// is idempotent so it can run on each boot.
//
//go:embed migrations/001_schema.sql
var Schema string

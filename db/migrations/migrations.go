// Package migrations embeds the goose SQL migrations for the relational order stores.
package migrations

import "embed"

// FS holds one directory of migrations per SQL driver.
//
//go:embed postgres/*.sql mysql/*.sql
var FS embed.FS

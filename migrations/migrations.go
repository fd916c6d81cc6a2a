// Package migrations embeds the schema for each supported store driver.
package migrations

import "embed"

// FS holds postgres/*.sql and sqlite/*.sql, applied in file name order.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

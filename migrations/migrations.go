// Package migrations embeds the schema for every supported database driver.
package migrations

import "embed"

// FS holds one directory of golang-migrate files per driver name.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

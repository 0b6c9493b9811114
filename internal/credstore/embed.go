package credstore

import "embed"

// migrationFS embeds the SQL migrations so no files need to exist on disk
// at runtime.
//
//go:embed migrations/*.sql
var migrationFS embed.FS

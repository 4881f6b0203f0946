// Package migrations embeds the SQL schema migrations into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-mixer/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

// Source is the embedded migration set.
var Source = database.Source{FS: files, Dir: "."}

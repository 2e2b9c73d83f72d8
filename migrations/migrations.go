// Package migrations embeds the SQL schema of each supported store
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// SQLite returns the sqlite migration files
func SQLite() fs.FS {
	return sub("sqlite")
}

// Postgres returns the postgres migration files
func Postgres() fs.FS {
	return sub("postgres")
}

func sub(dir string) fs.FS {
	f, err := fs.Sub(files, dir)
	if err != nil {
		panic(err)
	}
	return f
}

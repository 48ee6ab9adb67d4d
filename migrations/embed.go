// Package migrations holds the SQL applied by db.Migrator: FS to each clinic
// schema, GlobalFS once to the public schema shared by every clinic.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var FS embed.FS

//go:embed global/*.sql
var globalFiles embed.FS

// GlobalFS holds the tables shared by all clinics, such as the master
// product catalog.
var GlobalFS = mustSub(globalFiles, "global")

// GlobalSchema is where GlobalFS is applied.
const GlobalSchema = "public"

func mustSub(f fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(f, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

package migrations

import (
	"embed"
	"io/fs"
)

//go:embed attendance/*.sql
var files embed.FS

// Attendance returns the goose migrations of the attendance schema rooted at their directory.
func Attendance() fs.FS {
	sub, err := fs.Sub(files, "attendance")
	if err != nil {
		panic(err)
	}
	return sub
}

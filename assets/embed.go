package assets

import (
	"embed"
	"io/fs"
)

//go:embed faces.yaml sql/*.sql
var FS embed.FS

// DefaultFaces returns the embedded face catalog document.
func DefaultFaces() ([]byte, error) {
	return FS.ReadFile("faces.yaml")
}

// Migrations returns the embedded SQL migrations rooted at sql/.
func Migrations() fs.FS {
	sub, err := fs.Sub(FS, "sql")
	if err != nil {
		// Only fails for an invalid path literal.
		panic(err)
	}
	return sub
}

package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var content embed.FS

// Static holds index.html and app.js.
var Static fs.FS = mustSub(content, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

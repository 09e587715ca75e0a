package http

import (
	"embed"
	"io/fs"
	stdhttp "net/http"
)

//go:embed static
var staticFiles embed.FS

func staticHandler() stdhttp.Handler {
	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		// The embedded directory is fixed at build time.
		panic(err)
	}
	return stdhttp.StripPrefix("/static/", stdhttp.FileServer(stdhttp.FS(assets)))
}

package web

import (
	"embed"
)

// staticFiles holds the page served at GET /.
//
//go:embed static/*
var staticFiles embed.FS

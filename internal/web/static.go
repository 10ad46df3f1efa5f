package web

import "embed"

// staticFiles holds the page, its script and stylesheet.
//
//go:embed static/*
var staticFiles embed.FS

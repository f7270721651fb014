// Package web - Browser UI served at / and /static.
package web

import "embed"

// FS holds index.html and the static/ directory.
//
//go:embed index.html static
var FS embed.FS

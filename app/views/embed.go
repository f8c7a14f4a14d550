// Package views holds the forum's HTML templates and stylesheet.
package views

import "embed"

// FS contains the page templates, shared fragments, widgets and static assets.
//
//go:embed layout.html posts/*.html shared/*.html widgets/*.html accounts/*.html static
var FS embed.FS

package main

import (
	"troquel/internal/handlers/manufacturing"
	"troquel/internal/server"
)

var app *server.App

// vsmHandler builds the manufacturing handler from the current app so tests
// can swap db and config between runs.
func vsmHandler() *manufacturing.Handler {
	return &manufacturing.Handler{
		DB:     app.DB,
		Hub:    app.Hub,
		Store:  app.Store,
		Config: app.Config,
		Loader: app.Store,
	}
}

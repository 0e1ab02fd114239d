package server

import (
	"database/sql"

	"troquel/internal/config"
	"troquel/internal/store"
	"troquel/internal/websocket"
)

// App holds shared dependencies for the application.
type App struct {
	DB     *sql.DB
	Hub    *websocket.Hub
	Config *config.Config
	Store  *store.SQLStore
}

// NewApp wires the store to db with the configured trace normalizer.
func NewApp(db *sql.DB, hub *websocket.Hub, cfg *config.Config) *App {
	return &App{
		DB:     db,
		Hub:    hub,
		Config: cfg,
		Store:  &store.SQLStore{DB: db, Normalizer: cfg.Normalizer()},
	}
}

package manufacturing

import (
	"database/sql"
	"net/http"
	"strconv"

	"troquel/internal/config"
	"troquel/internal/store"
	"troquel/internal/websocket"
)

// Handler holds dependencies for production order, trace and VSM handlers.
type Handler struct {
	DB     *sql.DB
	Hub    *websocket.Hub
	Store  *store.SQLStore
	Config *config.Config
	// Loader supplies the dataset for analyses. Nil means Store.
	Loader store.Loader
}

func (h *Handler) loader() store.Loader {
	if h.Loader != nil {
		return h.Loader
	}
	return h.Store
}

// seedParam reads an optional ?seed= query value.
func seedParam(r *http.Request) (*int64, error) {
	raw := r.URL.Query().Get("seed")
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

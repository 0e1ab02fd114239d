package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"

	"troquel/internal/config"
	"troquel/internal/server"
	"troquel/internal/store"
)

var cfg *config.Config

func main() {
	port := flag.Int("port", 9000, "HTTP port")
	dbPath := flag.String("db", "troquel.db", "SQLite database path")
	cfgPath := flag.String("config", "troquel.yaml", "Plant configuration file")
	importOnly := flag.Bool("import", false, "Import the JSON trace and order files into the database and exit")
	flag.Parse()

	var err error
	cfg, err = config.Load(*cfgPath)
	if err != nil {
		log.Fatal("Config load failed: ", err)
	}
	if dir := os.Getenv("TROQUEL_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}

	if err := initDB(*dbPath); err != nil {
		log.Fatal("DB init failed: ", err)
	}
	app = server.NewApp(db, wsHub, cfg)

	if n, res, err := importJSON(); err != nil {
		log.Printf("JSON import failed: %v", err)
	} else if n > 0 || res.Inserted > 0 {
		log.Printf("Imported %d orders and %d traces from %s (%d duplicates, %d degraded)",
			n, res.Inserted, cfg.DataDir, res.Duplicates, res.Degraded)
	}
	if *importOnly {
		return
	}

	addr := fmt.Sprintf(":%d", *port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("Troquel VSM server starting on http://localhost%s", addr)
	log.Fatal(srv.ListenAndServe())
}

// importJSON loads the capture stations' JSON collections into SQLite.
// Orders already present and traces already stored are skipped.
func importJSON() (int, store.ImportResult, error) {
	if _, err := os.Stat(cfg.DataDir); err != nil {
		return 0, store.ImportResult{}, nil
	}
	src := &store.JSONFiles{
		Dir:        cfg.DataDir,
		TracesFile: cfg.TracesFile,
		OrdersFile: cfg.OrdersFile,
		Normalizer: cfg.Normalizer(),
	}
	return app.Store.Import(src)
}

func newRouter() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handleWebSocket)

	// API routes - using a simple router
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
		path = strings.TrimSuffix(path, "/")
		parts := strings.Split(path, "/")

		switch {
		case path == "health" && r.Method == "GET":
			handleHealth(w, r)

		// Orders
		case parts[0] == "orders" && len(parts) == 1 && r.Method == "GET":
			vsmHandler().ListOrders(w, r)
		case parts[0] == "orders" && len(parts) == 1 && r.Method == "POST":
			vsmHandler().CreateOrder(w, r)
		case parts[0] == "orders" && len(parts) == 3 && parts[2] == "status" && r.Method == "PUT":
			vsmHandler().UpdateOrderStatus(w, r, parts[1])
		case parts[0] == "orders" && len(parts) == 3 && parts[2] == "audit" && r.Method == "GET":
			vsmHandler().OrderHistory(w, r, parts[1])

		// Traces
		case parts[0] == "traces" && len(parts) == 1 && r.Method == "GET":
			vsmHandler().ListTraces(w, r)
		case parts[0] == "traces" && len(parts) == 1 && r.Method == "POST":
			vsmHandler().ImportTraces(w, r)

		// Value stream
		case parts[0] == "vsm" && len(parts) == 3 && parts[1] == "orders" && r.Method == "GET":
			vsmHandler().OrderAnalysis(w, r, parts[2])
		case parts[0] == "vsm" && len(parts) == 4 && parts[1] == "orders" && parts[3] == "export" && r.Method == "GET":
			vsmHandler().ExportAnalysis(w, r, parts[2])
		case path == "vsm/simulate" && r.Method == "POST":
			vsmHandler().Simulate(w, r)
		case path == "vsm/recommend" && r.Method == "POST":
			vsmHandler().Recommend(w, r)

		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
		}
	})
	limiter := server.RateLimitIngest(server.NewRateLimiter(), 120, time.Minute, cfg.TrustProxy)
	mux.Handle("/api/v1/", server.GzipMiddleware(limiter(api)))

	recovery := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))
	return recovery(server.LoggingMiddleware(server.SecurityHeaders(mux)))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := db.Ping(); err != nil {
		status = "degraded"
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     status,
		"ws_clients": wsHub.Clients(),
	})
}

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/joho/godotenv"

	"github.com/Lllllllleong/accessibilityflow/internal/api"
	"github.com/Lllllllleong/accessibilityflow/internal/models"
	"github.com/Lllllllleong/accessibilityflow/internal/services"
)

var (
	router  http.Handler
	once    sync.Once
	initErr error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Local runs pick up a .env; in the cloud the variables come from the deployment.
	_ = godotenv.Load()

	functions.HTTP("AccessibilityAPI", accessibilityAPI)
}

// main is required by the Go Functions Framework.
func main() {}

// accessibilityAPI is the HTTP function entry point.
func accessibilityAPI(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		var rt *services.Runtime
		rt, initErr = services.NewRuntime(context.Background(), services.LoadRuntimeConfig())
		if initErr == nil {
			router = api.NewRouter(rt.Pipeline, rt.Queries, rt.Config.CORSOrigins)
		}
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: "service unavailable"})
		return
	}

	router.ServeHTTP(w, r)
}

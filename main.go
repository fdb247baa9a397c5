package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	config "github.com/drummonds/goPageTurn/config"
	database "github.com/drummonds/goPageTurn/database"
	engine "github.com/drummonds/goPageTurn/engine"
	"github.com/drummonds/goPageTurn/engine/pagecache"
	"github.com/drummonds/goPageTurn/engine/pdfrenderer"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	database.Logger = Logger
	engine.Logger = Logger
	pagecache.Logger = Logger
}

// @title goPageTurn API
// @version 1.0
// @description Page-turn viewer service - opens PDF documents, caches rendered pages and animates page turns

// @contact.name API Support
// @contact.url https://github.com/drummonds/goPageTurn

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8000
// @BasePath /api
// @schemes http https

// @tag.name Sessions
// @tag.description Viewer session lifecycle, turns and draw plans

// @tag.name Pages
// @tag.description Rendered page bitmaps and retries

// @tag.name Recents
// @tag.description Recently opened documents

// @tag.name Health
// @tag.description Service health

func main() {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	Logger.Info("Setting up recents database", "name", serverConfig.DatabaseName)
	db := database.NewRepository(serverConfig)
	defer db.Close()
	Logger.Info("Database setup complete")

	e := echo.New()
	e.HideBanner = true

	// JSON errors for API endpoints, default handler for the rest
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}
		if strings.HasPrefix(c.Request().URL.Path, "/api/") {
			c.JSON(code, map[string]string{
				"error": http.StatusText(code),
				"path":  c.Request().URL.Path,
			})
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}

	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))

	serverHandler := engine.ServerHandler{
		DB:           db,
		Echo:         e,
		ServerConfig: serverConfig,
		Opener:       pdfrenderer.NewOpener(serverConfig.ValidateOnOpen),
		Sessions:     engine.NewSessionRegistry(),
	}
	serverHandler.RegisterRoutes()
	Logger.Info("Routes registered")

	cronScheduler := serverHandler.InitializeSchedules() //idle session sweeper
	Logger.Info("Schedules initialized")

	if serverConfig.ListenAddrIP == "" {
		Logger.Info("No Ip Addr set, binding on ALL addresses")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
	Logger.Info("Starting HTTP server", "address", addr)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	// Block until interrupted, then drain in-flight requests and release
	// every open document before exiting.
	<-ctx.Done()
	Logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		Logger.Error("Server shutdown failed", "error", err)
	}
	cronScheduler.Stop()
	serverHandler.Sessions.CloseAll()
	Logger.Info("Shutdown complete")
}

package main

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"
	"golang.org/x/sync/errgroup"

	ginGzip "github.com/gin-contrib/gzip"

	"github.com/gin-gonic/gin"

	clock "github.com/CodeAndHammer/memorama/internal/clock"
	config "github.com/CodeAndHammer/memorama/internal/config"
	constants "github.com/CodeAndHammer/memorama/internal/constants"
	handlers "github.com/CodeAndHammer/memorama/internal/handlers"
	models "github.com/CodeAndHammer/memorama/internal/models"
	session "github.com/CodeAndHammer/memorama/internal/session"
	util "github.com/CodeAndHammer/memorama/internal/util"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		util.LogFatal("Failed to load configuration: %v", err)
	}

	isProduction := cfg.IsProduction()
	util.LogInfo("Starting Geosistemas memory game in %s mode", map[bool]string{true: "production", false: "development"}[isProduction])

	app := newApp(cfg, clock.Real{})

	baseTplDir := "templates"
	staticDir := "./static"
	if isProduction && util.DirExists("dist") {
		util.LogInfo("Serving assets from dist/ directory")
		baseTplDir = filepath.ToSlash(filepath.Join("dist", "templates"))
		staticDir = "./dist/static"
	} else {
		util.LogInfo("Serving development assets from source directories")
	}

	router, err := newRouter(app, baseTplDir, staticDir)
	if err != nil {
		util.LogFatal("Failed to build router: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, app, cfg.Port, router); err != nil {
		util.LogFatal("Server failed: %v", err)
	}
	util.LogInfo("Server shutdown complete")
}

func newApp(cfg config.Config, scheduler clock.Scheduler) *models.App {
	return &models.App{
		GameSessions:   make(map[string]*models.GameState),
		Images:         make(map[string]*models.ImageAsset),
		LimiterMap:     make(map[string]*models.RateLimiterEntry),
		Scheduler:      scheduler,
		IsProduction:   cfg.IsProduction(),
		StartTime:      time.Now(),
		PublicURL:      cfg.PublicURL,
		CookieMaxAge:   cfg.CookieMaxAge,
		StaticCacheAge: cfg.StaticCacheAge,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		RateLimiterTTL: cfg.RateLimiterTTL,
		SessionTimeout: cfg.SessionTTL,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
}

func newRouter(app *models.App, baseTplDir, staticDir string) (*gin.Engine, error) {
	router := gin.Default()
	if app.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = app.MaxUploadBytes
	}

	router.Use(requestIDMiddleware())
	router.Use(securityHeadersMiddleware())
	router.Use(uploadLimitMiddleware(app))

	router.Use(csrfMiddleware(app))
	router.Use(validateCSRFMiddleware())

	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression,
		ginGzip.WithExcludedExtensions([]string{".svg", ".ico", ".png", ".jpg", ".jpeg", ".gif", ".webp"}),
		ginGzip.WithExcludedPaths([]string{constants.RouteImages, constants.RouteQRCode})))

	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		util.LogWarn("Failed to set trusted proxies: %v", err)
	}

	router.Use(func(c *gin.Context) {
		applyCacheHeaders(app, c)
	})

	funcMap := template.FuncMap{"hasPrefix": strings.HasPrefix}

	master := template.New("").Funcs(funcMap)
	if _, err := master.ParseGlob(filepath.ToSlash(filepath.Join(baseTplDir, "*.html"))); err != nil {
		return nil, err
	}
	if _, err := master.ParseGlob(filepath.ToSlash(filepath.Join(baseTplDir, "partials", "*.html"))); err != nil {
		return nil, err
	}
	router.SetHTMLTemplate(master)
	router.Static("/static", staticDir)

	limited := rateLimitMiddleware(app)
	with := func(h func(*models.App, *gin.Context)) gin.HandlerFunc {
		return func(c *gin.Context) { h(app, c) }
	}

	router.GET(constants.RouteHome, with(handlers.HomeHandler))
	router.GET(constants.RouteBoard, with(handlers.BoardHandler))
	router.POST(constants.RouteUpload, limited, with(handlers.UploadHandler))
	router.POST(constants.RouteStart, limited, with(handlers.StartHandler))
	router.POST(constants.RouteFlip, with(handlers.FlipHandler))
	router.POST(constants.RouteParticipant, limited, with(handlers.ParticipantHandler))
	router.POST(constants.RoutePlayAgain, limited, with(handlers.PlayAgainHandler))
	router.GET(constants.RouteExport, limited, with(handlers.ExportHandler))
	router.GET(constants.RouteImages+"/:id", with(handlers.ImageHandler))
	router.GET(constants.RouteQRCode, with(handlers.QRCodeHandler))
	router.GET(constants.RouteHealthz, with(handlers.HealthzHandler))

	return router, nil
}

func run(ctx context.Context, app *models.App, port int, router *gin.Engine) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		util.LogInfo("Server starting on http://localhost:%d", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		util.LogInfo("Shutdown signal received, shutting down server gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			util.LogWarn("HTTP server Shutdown: %v", err)
		}
		return nil
	})

	g.Go(func() error {
		return session.RunSessionCleanup(gctx, app, 10*time.Minute)
	})

	g.Go(func() error {
		return runLimiterCleanup(gctx, app, 30*time.Minute)
	})

	return g.Wait()
}

func applyCacheHeaders(app *models.App, c *gin.Context) {
	if app.IsProduction && strings.HasPrefix(c.Request.URL.Path, "/static/") {
		cachecontrol.New(cachecontrol.Config{
			Public: true,
			MaxAge: cachecontrol.Duration(app.StaticCacheAge),
		})(c)
		c.Header("Vary", "Accept-Encoding")
		return
	}
	cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	})(c)
}

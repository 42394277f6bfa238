package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogGin "github.com/samber/slog-gin"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mmcdole/repoauthz/pkg/authz"
	"github.com/mmcdole/repoauthz/pkg/authzlog"
	"github.com/mmcdole/repoauthz/pkg/healthstatus"
	"github.com/mmcdole/repoauthz/pkg/retrieval"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an HTTP server answering access queries against a rules file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}

			if err := authzlog.Initialize(&authzlog.Config{
				AppLogPath:   cfg.AppLogPath,
				QueryLogPath: cfg.QueryLogPath,
			}); err != nil {
				return err
			}

			repo, err := retrieval.NewRepository(afero.NewOsFs(), retrieval.Location(cfg.RulesPath), retrieval.Location(cfg.GroupsPath), time.Duration(cfg.CacheSeconds)*time.Second, *cfg.MustExist)
			if err != nil {
				return err
			}

			server := &queryServer{repo: repo, startTime: time.Now()}

			var statusWriter *healthstatus.Writer
			if cfg.StatusDir != "" {
				statusWriter, err = healthstatus.New(cfg.StatusDir, 30*time.Second, version, cfg.RulesPath)
				if err != nil {
					return err
				}
				statusWriter.SetMetricsProvider(server)
				if err := statusWriter.WriteStartFile(); err != nil {
					return err
				}
				statusWriter.StartHeartbeat()
			}

			handler := setupRoutes(server)
			httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			go func() {
				<-ctx.Done()
				if statusWriter != nil {
					statusWriter.Stop()
					_ = statusWriter.WriteStopFile("signal")
				}
				httpServer.Close()
			}()

			authzlog.LogApp("info", "serving", "addr", cfg.ListenAddr)
			err = httpServer.ListenAndServe()
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the JSON server configuration (required)")
	cmd.MarkFlagRequired("config")
	return cmd
}

// queryServer answers /check requests against a retrieval.Repository
// and doubles as a healthstatus.MetricsProvider.
type queryServer struct {
	repo       *retrieval.Repository
	startTime  time.Time
	queryCount atomic.Int64
}

func (s *queryServer) QueryCount() int64            { return s.queryCount.Load() }
func (s *queryServer) StartTime() time.Time         { return s.startTime }
func (s *queryServer) RulesCacheAge() time.Duration { return s.repo.CacheAge() }
func (s *queryServer) LastReloadError() error       { return s.repo.LastRefreshError() }

func setupRoutes(s *queryServer) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	level := slog.LevelInfo
	handler := slog.Default().Handler()
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	}
	httpLogger := slog.New(handler).WithGroup("http")

	r.Use(slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
	}))
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.BestSpeed))
	r.Use(cors.Default())
	r.Use(secure.New(secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/check", s.handleCheck)

	return r.Handler()
}

func (s *queryServer) handleCheck(c *gin.Context) {
	s.queryCount.Add(1)
	queryID := authzlog.NewQueryID()

	required, err := parseRights(c.DefaultQuery("rights", "r"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	repoName := c.Query("repo")
	user := c.Query("user")
	recursive := c.Query("recursive") == "true"

	var userPtr *string
	if user != "" {
		userPtr = &user
	}
	var pathPtr *string
	if path := c.Query("path"); path != "" {
		pathPtr = &path
	}

	loaded, err := s.repo.Authz()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	granted, err := authz.CheckAccess(loaded, repoName, pathPtr, userPtr, required, recursive)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	authzlog.LogQuery(queryID, repoName, user, c.Query("path"), c.DefaultQuery("rights", "r"), recursive, granted)
	c.JSON(http.StatusOK, gin.H{"query_id": queryID, "granted": granted})
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/readinglog/readlog/pkg/readlog/config"
	"github.com/readinglog/readlog/pkg/readlog/database"
	"github.com/readinglog/readlog/pkg/readlog/logging"
	"github.com/readinglog/readlog/pkg/readlog/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	configFile string
	v          = config.New()

	rootCmd = &cobra.Command{
		Use:           "readlog-server",
		Short:         "Readlog is a shared reading log for small groups",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and start the HTTP server",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			if _, err := openDB(cfg, log); err != nil {
				return err
			}
			log.Info("database migrations completed")
			return nil
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	flags.String("port", "", "port to listen on")
	flags.String("db-driver", "", "database driver (sqlite or postgres)")
	flags.String("db-dsn", "", "database DSN or sqlite file path")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("db.driver", flags.Lookup("db-driver"))
	_ = v.BindPFlag("db.dsn", flags.Lookup("db-dsn"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))

	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString("readlog-server: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to build logger")
	}
	if cfg.JWT.Secret == config.DevJWTSecret {
		log.Warn("using the development JWT secret; set READLOG_JWT_SECRET in production")
	}
	return cfg, log, nil
}

func openDB(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	log.Info("database ready", zap.String("driver", cfg.DB.Driver))
	return db, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := openDB(cfg, log)
	if err != nil {
		return err
	}

	if log.Core().Enabled(zap.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router, stop := newRouter(cfg, db, log)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting readlog server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server shutdown failed")
	}
	log.Info("server stopped")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leelachesszero/sprt-server/internal/config"
	"github.com/leelachesszero/sprt-server/internal/coordinator"
	"github.com/leelachesszero/sprt-server/internal/db"
	"github.com/leelachesszero/sprt-server/internal/server"
	"github.com/leelachesszero/sprt-server/internal/sprt"

	pb "github.com/leelachesszero/sprt-server/api/v1"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "sprt-server",
		Short:         "Distributed SPRT regression testing server",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(configPath); err != nil {
				return err
			}
			log.Println("Configuration loaded successfully.")
			slog.SetDefault(newLogger())
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "serverconfig.yaml", "path to the config file")
	root.AddCommand(serveCmd(), migrateCmd())
	return root
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(config.Config.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if config.Config.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.Config.Database.Driver != "postgres" {
				return fmt.Errorf("migrate needs the postgres driver, config has %q", config.Config.Database.Driver)
			}
			if err := db.Init(); err != nil {
				return err
			}
			return db.Migrate()
		},
	}
}

// openStore returns the configured store and a function closing it.
func openStore() (coordinator.Store, func() error, error) {
	switch config.Config.Database.Driver {
	case "postgres":
		if err := db.Init(); err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(); err != nil {
			return nil, nil, err
		}
		store, err := db.NewGormStore(db.GetDB())
		if err != nil {
			return nil, nil, err
		}
		sqlDB, _ := db.GetDB().DB()
		return store, sqlDB.Close, nil
	default:
		store, err := db.OpenBadger(db.BadgerConfig{
			Path:     config.Config.Database.Path,
			InMemory: config.Config.Database.InMemory,
			Logger:   slog.Default().With("component", "badger"),
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the worker gRPC service, the admin API and the lease sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg := config.Config

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	pool := coordinator.NewPool(store, coordinator.Options{
		Model:         sprt.Model(cfg.SPRT.Model),
		Confidence:    cfg.SPRT.Confidence,
		LeaseTTL:      cfg.Leases.TTL,
		MaxLeaseGames: cfg.Leases.MaxGames,
		Logger:        slog.Default(),
	})
	if err := pool.Load(ctx); err != nil {
		return err
	}
	dist := coordinator.NewDistributor(pool)
	agg := coordinator.NewAggregator(pool)

	lis, err := net.Listen("tcp", cfg.WebServer.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s := grpc.NewServer()
	pb.RegisterWorkerServiceServer(s, server.NewWorkerService(pool, dist, agg, cfg.Leases.PollRate, cfg.Leases.PollBurst, slog.Default()))

	gin.SetMode(gin.ReleaseMode)
	admin := &http.Server{
		Addr:              cfg.Admin.Address,
		Handler:           server.NewAdminRouter(pool, cfg.SPRT.Confidence),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("gRPC server listening", "address", lis.Addr().String())
		return s.Serve(lis)
	})
	g.Go(func() error {
		slog.Info("admin server listening", "address", admin.Addr)
		if err := admin.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return dist.Run(ctx, cfg.Leases.SweepInterval)
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		s.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return admin.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

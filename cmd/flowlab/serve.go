package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"flowlab/api"
	"flowlab/config"
	"flowlab/session"
	"flowlab/store"
	"flowlab/version"
)

var (
	serveListen  string
	serveDataDir string
	serveConfig  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the editor backend server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "address to listen on (default :7450)")
	serveCmd.Flags().StringVar(&serveDataDir, "data", "", "data directory (default ./data)")
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	if serveConfig != "" {
		var err error
		if cfg, err = config.FromFile(serveConfig); err != nil {
			return err
		}
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}
	if serveDataDir != "" {
		cfg.DataDir = serveDataDir
	}

	log.Printf("flowlab starting...")
	log.Printf("  listen:    %s", cfg.Listen)
	log.Printf("  data:      %s", cfg.DataDir)
	log.Printf("  autosave:  %s", cfg.AutosaveInterval)
	log.Printf("  threshold: %d", cfg.CommitThreshold)
	log.Printf("  version:   %s", cfg.Version)

	db, err := store.OpenDataDir(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := version.NewService(db)
	sessions := session.NewManager(db, svc, cfg.AutosaveInterval)
	defer sessions.Shutdown()

	mux := api.NewRouter(db, sessions, svc, cfg)
	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      api.WithDefaults(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		close(done)
	}()

	log.Printf("flowlab listening on %s", cfg.Listen)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	<-done
	log.Println("flowlab stopped")
	return nil
}

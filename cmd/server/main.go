package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	tutorwebui "github.com/solverpad/tutor-web-ui"
	"github.com/solverpad/tutor-web-ui/internal/glossary"
	"github.com/solverpad/tutor-web-ui/internal/handlers"
	"github.com/solverpad/tutor-web-ui/internal/renderer"
	"github.com/solverpad/tutor-web-ui/internal/services"
	"github.com/solverpad/tutor-web-ui/internal/transcript"
)

func main() {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatal(fmt.Errorf("error getting user config dir: %w", err))
	}
	cfgPath := filepath.Join(cfgDir, "/tutorwebui")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		log.Fatal(fmt.Errorf("error creating config directory: %w", err))
	}

	cfgFilePath := filepath.Join(cfgPath, "config.yaml")
	cfgFile, err := os.Open(cfgFilePath)
	if err != nil {
		log.Fatal(fmt.Errorf("error opening config file: %w", err))
	}
	defer cfgFile.Close()

	cfg := config{}
	if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil {
		log.Fatal(fmt.Errorf("error decoding config file: %w", err))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	llm, err := cfg.LLM.llm(cfg.SystemPrompt, logger)
	if err != nil {
		log.Fatal(fmt.Errorf("error creating llm client: %w", err))
	}

	var analytics transcript.Emitter = services.NopAnalytics{}
	if cfg.Analytics.Enabled {
		analyticsPath := cfg.Analytics.Path
		if analyticsPath == "" {
			analyticsPath = filepath.Join(cfgPath, "analytics.db")
		}
		boltAnalytics, err := services.NewBoltAnalytics(analyticsPath, logger)
		if err != nil {
			log.Fatal(fmt.Errorf("error opening analytics db: %w", err))
		}
		defer boltAnalytics.Close()
		analytics = boltAnalytics
	}

	glossaryPath := cfg.GlossaryPath
	if glossaryPath == "" {
		glossaryPath = filepath.Join(cfgPath, "glossary.yaml")
	}
	gloss, err := glossary.Load(glossaryPath)
	if err != nil {
		log.Fatal(fmt.Errorf("error loading glossary: %w", err))
	}

	m, err := handlers.NewMain(llm, analytics, gloss, handlers.Config{
		Renderer: renderer.Config{
			Math:             cfg.UI.Math,
			NumberedHeadings: cfg.UI.NumberedHeadings,
		},
		ClickToHighlight: cfg.UI.ClickToHighlight,
	}, logger)
	if err != nil {
		log.Fatal(fmt.Errorf("error creating handlers: %w", err))
	}

	// Serve static files
	staticFS, err := fs.Sub(tutorwebui.StaticFS, "static")
	if err != nil {
		log.Fatal(err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	// Create custom mux
	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/chats", m.HandleChat)
	mux.HandleFunc("/glossary", m.HandleGlossary)
	mux.HandleFunc("/sse/messages", m.HandleSSE)

	// Create custom server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			log.Printf("Failed to shutdown sse server: %v", err)
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Println("Server starting on :" + cfg.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Blocking select waiting for either interrupt or server error
	select {
	case err := <-serverErrors:
		log.Printf("Server error: %v", err)

	case sig := <-shutdown:
		log.Printf("Start shutdown, signal: %v", sig)

		// Create context with timeout for shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Gracefully shutdown the server
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Graceful shutdown failed: %v", err)
			if err := srv.Close(); err != nil {
				log.Printf("Forcing server close: %v", err)
			}
		}
	}
}

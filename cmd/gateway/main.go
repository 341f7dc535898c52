package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/gabicam/gabicam/internal/api/http"
	auth "github.com/gabicam/gabicam/internal/auth/middleware"
	"github.com/gabicam/gabicam/internal/config"
	"github.com/gabicam/gabicam/internal/db"
	"github.com/gabicam/gabicam/internal/exam"
	"github.com/gabicam/gabicam/internal/grading"
	"github.com/gabicam/gabicam/internal/grading/ocr"
	storage "github.com/gabicam/gabicam/internal/storage"
	syncx "github.com/gabicam/gabicam/internal/sync"
	"github.com/gabicam/gabicam/internal/user"
)

func main() {
	cfgPath := flag.String("config", "", "optional YAML config file (overridden by env)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("config", "err", err)
		os.Exit(1)
	}

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		logger.Error("db open failed", "driver", cfg.DBDriver, "err", err)
		os.Exit(1)
	}
	defer dbh.Close()

	driver := db.Driver(cfg.DBDriver)
	users := user.NewSQLStore(dbh, driver, cfg.BcryptCost)
	events := syncx.NewEventRepo(dbh, driver, "gateway")
	exams := exam.NewService(exam.NewSQLStore(dbh, driver), events, logger)

	bs, err := storage.NewFSStore(cfg.BlobBasePath, cfg.PublicURL)
	if err != nil {
		logger.Error("blob store", "path", cfg.BlobBasePath, "err", err)
		os.Exit(1)
	}

	// --- Grading service ---
	grader := grading.New(grading.Config{
		GradeURL:     cfg.GraderURL,
		QRURL:        cfg.QRReaderURL,
		TokenURL:     cfg.GraderTokenURL,
		ClientID:     cfg.GraderClientID,
		ClientSecret: cfg.GraderClientSecret,
		Timeout:      cfg.GraderTimeout,
	}, logger)
	names := grading.NameReaders{grader}
	if cfg.EnableOCRFallback {
		names = append(names, ocr.NewTesseractOCR())
	}

	h := api.NewRouter(api.Deps{
		Users:             users,
		Exams:             exams,
		Auth:              auth.NewAuthService(cfg.AuthHMACSecret),
		Grader:            grader,
		Names:             names,
		Blobs:             bs,
		Events:            events,
		DB:                dbh,
		ExpectedQuestions: cfg.ExpectedQuestions,
		CORSOrigins:       cfg.CORSOrigins,
		RequestTimeout:    cfg.GraderTimeout + 15*time.Second,
		Log:               logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop, cancelSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelSignals()
	go func() {
		<-stop.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.HTTPAddr, "db", cfg.DBDriver, "grader", cfg.GraderURL, "ocr_fallback", cfg.EnableOCRFallback)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server", "err", err)
		os.Exit(1)
	}
}

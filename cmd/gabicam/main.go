// Command gabicam is the device side of GabiCam: it keeps exams and captured
// sheets in a local store, grades them through the grading service and
// pushes exams and results to the GabiCam API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gabicam/gabicam/internal/client"
	"github.com/gabicam/gabicam/internal/config"
	"github.com/gabicam/gabicam/internal/correction"
	"github.com/gabicam/gabicam/internal/device"
	"github.com/gabicam/gabicam/internal/grading"
	"github.com/gabicam/gabicam/internal/grading/ocr"
	"github.com/gabicam/gabicam/internal/storage"
	syncx "github.com/gabicam/gabicam/internal/sync"
	"github.com/redis/go-redis/v9"
)

const usage = `usage: gabicam [-config file] [-memory] [-v] <command> [args]

commands:
  register <matricula> <nome> <senha>
  login <matricula> <senha>
  logout
  password <senha-atual> <nova-senha>
  exam list | create | edit <id> | delete <id> | sync
  capture list | add -exam <id> [-name aluno] <imagem> | delete <id>...
  correct <captureId> | correct -all -exam <id>
  save <examId>
  lastsave <examId>
  results [-exam <serverId>] [-stats] [-xlsx arquivo]
  clear all|exams|captures
  dump
  agent
`

type app struct {
	cfg      config.Config
	log      *slog.Logger
	redis    redis.UniversalClient
	cache    *device.Cache
	api      *client.Client
	syncer   *syncx.Syncer
	workflow *correction.Workflow
}

func main() {
	cfgPath := flag.String("config", "", "optional YAML config file (overridden by env)")
	memory := flag.Bool("memory", false, "keep device state in memory instead of Redis")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, *memory, logger)
	if err != nil {
		logger.Error("startup", "err", err)
		os.Exit(1)
	}
	err = a.run(ctx, flag.Arg(0), flag.Args()[1:])
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "erro:", err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg config.Config, memory bool, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	var kv device.KV
	if memory {
		kv = device.NewMemoryKV()
	} else {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		kv = device.NewRedisKV(a.redis, "gabicam:"+cfg.DeviceID+":")
	}
	a.cache = device.NewCache(kv)

	a.api = client.New(client.Config{
		BaseURL: cfg.APIBaseURL,
		Credentials: func(ctx context.Context) (string, string, error) {
			s, err := a.cache.Session(ctx)
			if err != nil {
				return "", "", err
			}
			token := ""
			if s.User != nil {
				token = s.User.AccessToken
			}
			return s.Registration, token, nil
		},
	})

	blobs, err := storage.NewFSStore(cfg.ImagesDir, "")
	if err != nil {
		return nil, err
	}
	grader := grading.New(grading.Config{
		GradeURL:     cfg.GraderURL,
		QRURL:        cfg.QRReaderURL,
		TokenURL:     cfg.GraderTokenURL,
		ClientID:     cfg.GraderClientID,
		ClientSecret: cfg.GraderClientSecret,
		Timeout:      cfg.GraderTimeout,
	}, log)
	names := grading.NameReaders{grader}
	if cfg.EnableOCRFallback {
		names = append(names, ocr.NewTesseractOCR())
	}

	a.syncer = syncx.New(a.cache, a.api, time.Now, log)
	a.workflow = correction.New(correction.Deps{
		Cache:  a.cache,
		Blobs:  blobs,
		Grader: grader,
		Names:  names,
		Remote: a.api,
		Syncer: a.syncer,
		Config: correction.Config{ExpectedQuestions: cfg.ExpectedQuestions},
		Log:    log,
	})
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

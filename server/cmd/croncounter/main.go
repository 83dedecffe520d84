package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cron-counter/server/internal/api"
	"cron-counter/server/internal/codec"
	"cron-counter/server/internal/config"
	"cron-counter/server/internal/contents"
	"cron-counter/server/internal/counter"
	"cron-counter/server/internal/events"
	"cron-counter/server/internal/log"
	"cron-counter/server/internal/metrics"
	"cron-counter/server/internal/pinger"
	"cron-counter/server/internal/runs"
)

var (
	myName  = filepath.Base(os.Args[0])
	version string
)

var (
	optConfig   = flag.String("config", "", "/path/to/croncounter.yaml (optional, env overrides it)")
	optLogLevel = flag.String("log-level", "", "debug|info|warn|error (overrides LOG_LEVEL)")
)

func main() {
	// 敏感信息（CRON_SECRET / GITHUB_TOKEN）只放环境变量，本地开发可写在 .env。
	godotenv.Load()
	flag.Parse()

	cfg, err := config.Load(*optConfig)
	if err != nil {
		// logger 依赖配置里的日志级别，这里先用默认 logger 报错。
		log.Must(log.NewLogger()).Sugar().Fatalf("*** config.Load: %v", err)
	}
	level := cfg.Logging.Level
	if *optLogLevel != "" {
		level = *optLogLevel
	}
	logger := log.Must(log.NewLogger(log.WithLogLevel(level))).Sugar().With(zap.String("app", myName))
	defer logger.Sync()

	logger.Infow("starting", "ver", version, "config", cfg.Summary())

	c, err := codec.ByName(cfg.Counter.Codec)
	if err != nil {
		logger.Fatalf("*** codec.ByName: %v", err)
	}
	logger.Infof("base64 codec=%s", c.Name())

	client := contents.NewClient(contents.Options{
		BaseURL: cfg.GitHub.APIURL,
		Owner:   cfg.GitHub.Owner,
		Repo:    cfg.GitHub.Repo,
		Token:   cfg.GitHub.Token,
		Timeout: cfg.Upstream.Timeout,
	})

	var store runs.Store
	if cfg.Runs.RedisAddr == "" {
		store = runs.NewInMemoryStore()
	} else {
		rc := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:        []string{cfg.Runs.RedisAddr},
			DialTimeout:  time.Second * 2,
			ReadTimeout:  time.Second * 2,
			WriteTimeout: time.Second * 2,
		})
		defer rc.Close()
		store = runs.NewRedisStore(rc, "")
	}

	var p *pinger.Pinger
	if cfg.Ping.Active() {
		p = pinger.New(cfg.Ping.URL, cfg.Upstream.Timeout, logger)
		logger.Infof("self-ping target=%s", p.URL())
	} else {
		logger.Infof("self-ping disabled")
	}

	hub := events.NewHub(logger)
	defer hub.Close()

	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(api.Deps{
		Secret: cfg.Cron.Secret,
		Counter: counter.New(client, c, counter.Target{
			Path:   cfg.Counter.Path,
			Branch: cfg.Counter.Branch,
		}, logger),
		Pinger:  p,
		Runs:    store,
		Hub:     hub,
		Metrics: metrics.New(),
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.Infof("shutting down")
		hub.Close()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := eg.Wait(); err != nil {
		logger.Errorf("*** serve: %v", err)
	}
	logger.Infof("done")
}

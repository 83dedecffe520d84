package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	vh "github.com/tckz/vegetahelper"
	vegeta "github.com/tsenart/vegeta/v12/lib"
	"go.uber.org/zap"

	"cron-counter/server/internal/api"
	"cron-counter/server/internal/log"
)

// 以固定速率调用 /api/cron，用来观察并发调用时 sha 冲突导致的 500。
// CRON_SECRET 从环境变量或 .env 读取。

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optRate = &vh.RateFlag{
		Rate: &vegeta.Rate{
			Freq: 1,
			Per:  1 * time.Second,
		}}
	optDuration = flag.Duration("duration", 10*time.Second, "Duration of the test [0 = forever]")
	optOutput   = flag.String("output", "", "/path/to/results.bin or 'stdout'")
	optWorkers  = flag.Uint64("workers", vegeta.DefaultWorkers, "Number of workers")
	optLogLevel = flag.String("log-level", "info", "info|warn|error")
	optTarget   = flag.String("target", "http://localhost:8080", "base url of the counter service")
)

func init() {
	godotenv.Load()

	flag.Var(optRate, "rate", "Number of requests per time unit")
	flag.Parse()

	logger = log.Must(log.NewLogger(log.WithLogLevel(*optLogLevel))).Sugar().With(zap.String("app", myName))
}

type nopWriteCloser struct {
	io.Writer
}

func (c nopWriteCloser) Close() error {
	return nil
}

func openResultFile(out string) (io.WriteCloser, error) {
	switch out {
	case "stdout":
		return &nopWriteCloser{os.Stdout}, nil
	default:
		return os.Create(out)
	}
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)
	defer logger.Infof("done")

	if *optOutput == "" {
		logger.Fatalf("*** --output must be specified.")
	}
	secret := os.Getenv("CRON_SECRET")
	if secret == "" {
		logger.Fatalf("*** CRON_SECRET must be set.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cl := &http.Client{Timeout: 30 * time.Second}
	url := *optTarget + api.CronPath
	var succeeded, failed int64

	atk := vh.NewAttacker(func(ctx context.Context) (result *vh.HitResult, retErr error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+secret)

		resp, err := cl.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode != http.StatusOK {
			atomic.AddInt64(&failed, 1)
			return nil, fmt.Errorf("status=%d", resp.StatusCode)
		}
		atomic.AddInt64(&succeeded, 1)
		return result, nil
	}, vh.WithWorkers(*optWorkers))
	res := atk.Attack(ctx, *optRate.Rate, *optDuration, "cron")

	out, err := openResultFile(*optOutput)
	if err != nil {
		logger.Fatal(err)
	}
	defer out.Close()
	enc := vegeta.NewEncoder(out)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)

loop:
	for {
		select {
		case s := <-sig:
			logger.Infof("Received signal: %s", s)
			cancel()
			// 一直循环到 res 被关闭。
		case r, ok := <-res:
			if !ok {
				break loop
			}
			if err := enc.Encode(r); err != nil {
				logger.Errorf("*** Encode: %v", err)
				break loop
			}
		}
	}

	cancel()
	logger.Infof("ok=%d, failed=%d", atomic.LoadInt64(&succeeded), atomic.LoadInt64(&failed))
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/snapsize/internal/artifact"
	"github.com/you/snapsize/internal/config"
	"github.com/you/snapsize/internal/httpapi"
	"github.com/you/snapsize/internal/limit"
	"github.com/you/snapsize/internal/orchestrator"
	"github.com/you/snapsize/internal/runner"
	"github.com/you/snapsize/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := newLogger(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping", zap.Error(err))
	}

	artifacts, err := artifact.NewR2(cfg.R2Endpoint, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2Bucket)
	if err != nil {
		log.Fatal("object store", zap.Error(err))
	}

	jobs := store.New(rdb, cfg.JobTTL())
	prober := limit.NewProber(http.DefaultClient, cfg.MaxUploadBytes())
	run := runner.NewClient(cfg.RunnerURL, cfg.RunnerToken, cfg.RunnerTimeout())
	disp := orchestrator.NewDispatcher(cfg.MaxConcurrentJobs, log)
	orch := orchestrator.New(jobs, prober, run, disp, cfg.PublicBaseURL, log)

	api := httpapi.Server{
		Orch:           orch,
		Jobs:           jobs,
		Artifacts:      artifacts,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Log:            log,
	}
	srv := &http.Server{Addr: cfg.APIAddr, Handler: api.Router()}

	go func() {
		log.Info("api listening", zap.String("addr", cfg.APIAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutCtx)

	// Let in-flight background jobs reach a terminal record before exit.
	disp.Wait()
	log.Info("drained, exiting")
}

func newLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

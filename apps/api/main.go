package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"

	dig_container "github.com/trezcool/academia/apps/api/di/dig"
	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/exam"
	"github.com/trezcool/academia/core/schedule"
)

type app struct {
	dig.In

	Conf          *core.Config
	Logger        core.Logger
	DBLoggerParam dig_container.DBLoggerParam
	DB            *sqlx.DB
	Metrics       *prometheus.Registry
	Jobs          *schedule.Registry
	ExamSvc       *exam.Service
	Sweeper       dig_container.Sweeper
	Server        *echoapi.Server
}

func main() {
	c := dig_container.New()
	if err := c.Invoke(run); err != nil {
		log.Fatal(err)
	}
}

func run(a app) error {
	conf, logger := a.Conf, a.Logger

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build), map[string]interface{}{
		"env":    conf.Env,
		"engine": conf.Database.Engine,
	})
	defer logger.Info("Application stopped")

	if a.DB != nil {
		defer func() {
			if err := a.DB.Close(); err != nil {
				a.DBLoggerParam.Logger.Error(fmt.Sprintf("closing database: %v", err), err)
			}
		}()
	}

	// =========================================================================
	// Start Scheduler
	//
	// Exams persisted before a restart have no job: the startup sweep finishes the overdue ones
	// and arms the others.

	a.Jobs.Start()
	if _, err := a.ExamSvc.Sweep(context.Background()); err != nil {
		logger.Error(fmt.Sprintf("startup sweep: %v", err), err)
	}
	if a.Sweeper.Periodic != nil {
		a.Sweeper.Start()
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus metrics of the app.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", promhttp.HandlerFor(a.Metrics, promhttp.HandlerOpts{}))

	debugSrv := &http.Server{Addr: conf.Server.DebugHost, Handler: http.DefaultServeMux}

	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		if err := debugSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// the api keeps running without its debug endpoints
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
		return nil
	})

	// =========================================================================
	// Start API Service

	g.Go(a.Server.Start)

	// =========================================================================
	// Shutdown

	g.Go(func() error {
		select {
		case sig := <-a.Server.ShutdownSignal():
			logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		case <-gctx.Done():
			logger.Info("api server stopped, start shutdown...")
		}
		return shutdown(a, debugSrv)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("server error: %v", err), err)
		return err
	}
	return nil
}

// shutdown stops taking requests first, then lets running jobs complete.
func shutdown(a app, debugSrv *http.Server) error {
	conf, logger := a.Conf, a.Logger

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	var result error
	if err := a.Server.Shutdown(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		if err = a.Server.Close(); err != nil {
			result = errors.Wrap(err, "could not force stop server")
		}
	}
	_ = debugSrv.Shutdown(ctx)

	jobsCtx, cancelJobs := context.WithTimeout(context.Background(), conf.Scheduler.ShutdownTimeout)
	defer cancelJobs()

	if a.Sweeper.Periodic != nil {
		if err := a.Sweeper.Stop(jobsCtx); err != nil {
			logger.Warn("exam sweep still running", err)
		}
	}
	if err := a.Jobs.Stop(jobsCtx); err != nil {
		logger.Error(fmt.Sprintf("stopping job registry: %v", err), err)
	}
	return result
}

/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neighborhood-lab/care-commons-sub009/pkg/coordinator"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/httpapi"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/log"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/matching"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/metrics"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/ml"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/optimizer"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/proposal"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/scheduler"
	"github.com/neighborhood-lab/care-commons-sub009/pkg/store"
)

func withDefaultInt(envVar string, def int) int {
	if v := os.Getenv(envVar); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func withDefaultBool(envVar string, def bool) bool {
	if v := os.Getenv(envVar); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func main() {
	httpPort := flag.Int("http-port", withDefaultInt("HTTP_PORT", 8080), "The port the HTTP API binds to")
	metricsPort := flag.Int("metrics-port", withDefaultInt("METRICS_PORT", 8081), "The port the Prometheus metrics endpoint binds to")
	sweepInterval := flag.Int("sweep-interval-seconds", withDefaultInt("SWEEP_INTERVAL_SECONDS", 60), "How often the proposal expiry sweep runs")
	mlEnabled := flag.Bool("ml-enabled", withDefaultBool("ML_ENABLED", false), "Whether to wire an ML score blender in front of the rule-based evaluator")
	flag.Parse()

	logger, err := log.NewZap()
	if err != nil {
		panic(fmt.Sprintf("unable to construct logger: %s", err.Error()))
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.IntoContext(ctx, logger)

	memStore := store.NewMemory()

	var blender matching.Blender
	if *mlEnabled {
		// Predictor is wired per deployment; with nil, every Blend call returns
		// a NO_PREDICTOR error and the evaluator keeps the rule-based score.
		blender = ml.New(nil)
	}
	evaluator := matching.New(memStore, blender)
	proposals := proposal.New(memStore)
	opt := optimizer.New(memStore, evaluator)
	coord := coordinator.New(memStore, evaluator, proposals, opt)

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	sweeper := scheduler.New(proposals, time.Duration(*sweepInterval)*time.Second)
	go sweeper.Run(ctx)

	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *httpPort),
		Handler: httpapi.New(coord),
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *metricsPort),
		Handler: metricsMux,
	}

	go func() {
		log.FromContext(ctx).Info("starting HTTP API", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.FromContext(ctx).Error(err, "HTTP API server exited")
		}
	}()
	go func() {
		log.FromContext(ctx).Info("starting metrics endpoint", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.FromContext(ctx).Error(err, "metrics server exited")
		}
	}()

	<-ctx.Done()
	log.FromContext(ctx).Info("shutting down")
	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
}

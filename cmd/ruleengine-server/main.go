package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rulelattice/engine/internal/config"
	"github.com/rulelattice/engine/internal/model"
	"github.com/rulelattice/engine/internal/observability"
	"github.com/rulelattice/engine/internal/server"
	"github.com/rulelattice/engine/internal/storage"
	"github.com/rulelattice/engine/pkg/cachecontract"
	"github.com/rulelattice/engine/pkg/ruledef"
	"github.com/rulelattice/engine/pkg/ruleql"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	rulesPath := flag.String("rules", "", "path to a rule file (.json, .yaml/.yml, or .ruleql)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx := context.Background()
	shutdownTracing := observability.InitOpenTelemetryOrNoop(ctx, "ruleengine", version)
	defer shutdownTracing(ctx)

	if err := observability.InitMetrics(); err != nil {
		log.Printf("warning: failed to initialize OpenTelemetry metrics: %v", err)
	}
	if _, err := observability.InitPrometheusExporter(); err != nil {
		log.Printf("warning: failed to initialize Prometheus exporter: %v", err)
	}

	emitter := observability.NewAsyncEmitter(1024)
	emitter.Start()
	defer emitter.Stop()

	stopRuntimeStats := observability.StartRuntimeStatsCollector(ctx, observability.DefaultRuntimeStatsInterval)
	defer stopRuntimeStats()

	source, err := ruleSource(*rulesPath)
	if err != nil {
		log.Fatalf("loading rules: %v", err)
	}

	cacheCfg := cachecontract.DefaultRistrettoConfig(cfg.Cache.MaxEntries)
	eligibleCache, err := cachecontract.NewRistretto[string, []model.PredicateID](cacheCfg)
	if err != nil {
		log.Fatalf("constructing eligible-predicate cache: %v", err)
	}
	defer eligibleCache.Close()

	engine, err := server.NewEngine(source, eligibleCache)
	if err != nil {
		log.Fatalf("compiling initial ruleset: %v", err)
	}

	handlers := server.NewHandlers(engine)
	mux := http.NewServeMux()
	handlers.Routes(mux)

	handler := withLogging(withCORS(mux))

	httpServer := &http.Server{
		Addr:           addr(cfg.HTTP.Port),
		Handler:        handler,
		ReadTimeout:    time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(cfg.HTTP.IdleTimeout) * time.Second,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("rule engine %s (%s) listening on %s", version, commit, httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-stop
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server shutdown error: %v", err)
	}
	log.Println("server stopped gracefully")
}

func addr(port int) string {
	if port == 0 {
		port = 8080
	}
	return ":" + strconv.Itoa(port)
}

func ruleSource(path string) (ruledef.Source, error) {
	if path == "" {
		return ruledef.StaticSource{}, nil
	}
	if strings.HasSuffix(path, ".ruleql") {
		defs, err := ruleql.ParseFile(path)
		if err != nil {
			return nil, err
		}
		return ruledef.StaticSource{Defs: defs}, nil
	}
	return ruledef.NewFileSource(&storage.RealFileSystem{}, path), nil
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

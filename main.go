package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"camstream/config"
	"camstream/serve"
	"camstream/video"
	"camstream/video/process"
	"camstream/video/source/opencv"
)

var (
	configPath = flag.String("config", "camstream.yaml", "Path to the JSON or YAML configuration file. Empty to run without one.")
	listen     = flag.String("listen", "", "Address to serve on. Overrides the configuration.")
	testSource = flag.String("test_source", "", "Video file or URI to serve for every camera, for testing.")
	logLevel   = flag.String("log_level", "info", "Log level: debug, info, warn or error.")
)

func main() {
	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level %q: %v", *logLevel, err)
	}
	log.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *configPath == "" {
		config.Set(config.Default())
	} else if err := config.Load(ctx, *configPath); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.Get()

	addr := cfg.ListenAddr()
	if *listen != "" {
		addr = *listen
	}

	registry := video.NewRegistry(&opencv.Opener{}, video.FetcherOptions{
		RetryDelay: cfg.RetryDelay(),
	})
	status := serve.NewStatusUpdater()
	defer status.Close()
	registry.Listeners = append(registry.Listeners, status)

	stream := serve.NewStreamServer(config.Current{TestSource: *testSource}, registry, process.NewImager())

	mux := http.NewServeMux()
	mux.Handle(serve.StreamPattern, stream)
	mux.Handle("GET /status", &serve.StatusServer{Registry: registry, Started: time.Now()})
	mux.Handle("GET /statusws", status)
	mux.Handle("GET /metrics", promhttp.Handler())
	if cfg.WebDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(cfg.WebDir)))
	}

	logw := log.StandardLogger().WriterLevel(log.InfoLevel)
	defer logw.Close()
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(log.StandardLogger()),
		handlers.PrintRecoveryStack(true),
	)
	server := &http.Server{
		Addr:    addr,
		Handler: recovery(handlers.CombinedLoggingHandler(logw, mux)),
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() {
		log.Infof("Hosting camera streams on %s", addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigs:
		log.Infof("Caught signal %v, shutting down", sig)
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Server failed: %v", err)
		}
	}

	// Viewers first, so that their streams end before the sources go away.
	stream.Shutdown()
	registry.StopAll()

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	if err := server.Shutdown(sctx); err != nil {
		log.Warnf("Server shutdown: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"detectcam/config"
	"detectcam/csvlog"
	"detectcam/history"
	"detectcam/notify"
	"detectcam/pipeline"
	"detectcam/serve"
	"detectcam/video"
	"detectcam/video/process"
	"detectcam/video/sink"
	"detectcam/video/source"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "detectcam.json", "Path to the JSON configuration file.")
	port       = flag.Int("port", 0, "Port to host web frontend. Overrides the configuration file.")
	verbose    = flag.Bool("v", false, "Enable debug logging.")
)

func initialTarget(c *config.Config) source.Target {
	if c.Source == "" {
		log.Infof("No source configured, using webcam 0")
		return source.WebcamTarget(0)
	}
	if i, ok := c.WebcamIndex(); ok {
		return source.WebcamTarget(i)
	}
	return source.FileTarget(c.Source)
}

func newDetector(c *config.ModelConfig) (*process.NetDetector, error) {
	labels := process.DefaultLabels()
	if c.LabelsPath != "" {
		var err error
		if labels, err = process.ReadLabels(c.LabelsPath); err != nil {
			return nil, fmt.Errorf("reading labels: %w", err)
		}
	}
	return process.NewNetDetector(process.NetConfig{
		Path:       c.Path,
		ConfigPath: c.ConfigPath,
		Labels:     labels,
		Confidence: c.Confidence,
		InputSize:  c.InputSize,
		Scale:      c.Scale,
		Mean:       c.Mean,
		SwapRB:     c.SwapRB,
	})
}

func run() error {
	cw, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cw.Watch(ctx)
	cfg := cw.Get()

	listenPort := cfg.Port
	if *port != 0 {
		listenPort = *port
	}

	fs, err := video.NewFilesystem(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	csvw, err := csvlog.Create(fs.NewLogPath(time.Now()))
	if err != nil {
		return fmt.Errorf("creating detection log: %w", err)
	}
	defer csvw.Close()
	loggers := []pipeline.DetectionLogger{csvw}

	detector, err := newDetector(&cfg.Model)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}
	abandoned := false
	defer func() {
		// An abandoned worker may still be inside Detect.
		if !abandoned {
			detector.Close()
		}
	}()

	writers, err := video.NewWriterFactory(cfg)
	if err != nil {
		return err
	}
	rec := video.NewRecorder(fs, writers, cfg.FallbackFPS)
	defer rec.Close()

	store := pipeline.NewStore()
	opener := source.NewVideoCaptureOpener()

	mux := http.NewServeMux()

	if cfg.DatabaseDSN != "" {
		db, err := history.Open(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		hist, err := history.NewStore(db)
		if err != nil {
			return err
		}
		go hist.Run(ctx)
		loggers = append(loggers, hist)
		mux.Handle("/api/history", hist)

		push, err := notify.NewWebPush(db, cfg.Notify.Subscriber)
		if err != nil {
			return err
		}
		push.RegisterHandlers(mux)
		notifier := &notify.Notifier{
			Listeners: []notify.NotifyListener{push},
			Config:    cw.Get,
		}
		go notifier.Run(ctx, store)
	}

	worker := pipeline.NewWorker(pipeline.WorkerConfig{
		Opener:   opener,
		Detector: detector,
		Recorder: rec,
		Store:    store,
		Loggers:  loggers,
		Options:  pipeline.OptionsFromConfig(cfg),
	}, initialTarget(cfg))
	if err := worker.Start(); err != nil {
		return err
	}

	control := &pipeline.Control{
		Worker:   worker,
		Recorder: rec,
		Opener:   opener,
		Config:   cw.Get,
	}

	mux.Handle("/video_feed", sink.NewMJPEGServer(store, func() time.Duration {
		return cw.Get().StreamInterval()
	}))
	mux.Handle("/api/meta", &serve.DetectionServer{Store: store})
	mux.Handle("/ws/detections", serve.NewMetaPusher(store, func() time.Duration {
		return cw.Get().MetaInterval()
	}))
	(&serve.ControlServer{Control: control}).RegisterHandlers(mux)
	mux.Handle("/api/recordings", &serve.RecordingsServer{FS: fs, Active: rec.ActivePath})
	mux.Handle("/api/recordings/delete", &serve.DeleteServer{FS: fs, Active: rec.ActivePath})
	mux.Handle("/recording", serve.NewVideoServer(fs))
	mux.Handle("/thumb", serve.NewThumbServer(fs))
	mux.Handle("/api/health", &serve.HealthServer{Started: time.Now(), Running: worker.Running})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", listenPort),
		Handler: serve.Wrap(mux),
	}
	go func() {
		log.Infof("Hosting web frontend on port %d", listenPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("HTTP server failed: %v", err)
			cancel()
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	var result error
	select {
	case sig := <-sigs:
		log.Infof("Caught signal %v", sig)
	case <-worker.Done():
		result = fmt.Errorf("pipeline worker exited: %w", worker.Err())
	case <-ctx.Done():
		result = errors.New("HTTP server stopped")
	}

	if err := worker.Stop(cfg.StopTimeout()); err != nil {
		abandoned = errors.Is(err, pipeline.ErrStopTimeout)
		if result == nil {
			log.Warnf("Stopping pipeline: %v", err)
		}
	}

	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		// Streaming clients keep connections open; cut them off.
		srv.Close()
	}
	return result
}

func main() {
	flag.Parse()
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

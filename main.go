package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"csi-motion-monitor/analytics"
	"csi-motion-monitor/cache"
	"csi-motion-monitor/capture"
	"csi-motion-monitor/config"
	"csi-motion-monitor/handlers"
	"csi-motion-monitor/logger"
	"csi-motion-monitor/models"
	"csi-motion-monitor/notify"
	"csi-motion-monitor/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "csi-motion-monitor")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting CSI monitor",
		zap.String("sensor_id", cfg.SensorID),
		zap.Bool("live", cfg.LiveCapture()),
		zap.Any("detectors", cfg.Detectors),
		zap.String("sit_baseline", string(cfg.Posture.SitBaseline)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.LiveCapture() && cfg.Capture.Provision {
		prov := capture.NewProvisioner(capture.ProvisionConfig{
			Interface:        cfg.Capture.Interface,
			MonitorInterface: cfg.Capture.MonitorInterface,
			ChanSpec:         cfg.Capture.ChanSpec,
			MACFilter:        cfg.Capture.MACFilter,
			NexutilParams:    cfg.Capture.NexutilParams,
		}, nil, logger)
		if err := prov.Setup(ctx); err != nil {
			logger.Fatal("Interface setup failed, not starting capture", zap.Error(err))
		}
	}

	profiles := analytics.NewProfileStore(logger)
	if cfg.Enabled(models.KindPosture) {
		loadProfiles(ctx, cfg, profiles, logger)
	}

	engine := analytics.NewEngine(analytics.EngineConfig{
		SensorID:       cfg.SensorID,
		QueueSize:      cfg.Capture.QueueSize,
		EventQueueSize: cfg.EventQueueSize,
	}, buildStages(cfg, profiles, logger), logger)
	engine.AddSink(analytics.NewLogSink(logger))

	var statusStore handlers.StatusStore
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(ctx, cache.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			StatusTTL:   cfg.Redis.StatusTTL,
			EventStream: cfg.Redis.EventStream,
		})
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
		engine.AddSink(redisClient)
		statusStore = redisClient
	}

	if cfg.MQTT.Broker != "" {
		publisher, err := notify.NewMQTTPublisher(notify.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		})
		if err != nil {
			logger.Fatal("Failed to connect to MQTT broker", zap.String("broker", cfg.MQTT.Broker), zap.Error(err))
		}
		defer publisher.Close()
		engine.AddSink(publisher)
	}

	if cfg.FeatureLogPath != "" {
		featureLog, err := storage.OpenFeatureLog(cfg.FeatureLogPath)
		if err != nil {
			logger.Fatal("Failed to open feature log", zap.String("path", cfg.FeatureLogPath), zap.Error(err))
		}
		defer featureLog.Close()
		engine.SetRecorder(featureLog)
	}

	source, err := openSource(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open capture source", zap.Error(err))
	}
	defer source.Close()

	producer := capture.NewProducer(source, cfg.Capture.Antennas, engine, logger)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		engine.Run(ctx)
	}()

	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		if err := producer.Run(ctx); err != nil {
			logger.Error("Capture stopped with error", zap.Error(err))
		}
	}()

	r := mux.NewRouter()
	handlers.NewStatusHandler(cfg.SensorID, statusStore, profiles).Register(r)
	r.Path("/metrics").Handler(promhttp.Handler())

	srv := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case <-consumerDone:
		logger.Info("Capture finished, shutting down")
	}

	cancel()
	<-consumerDone

	select {
	case <-producerDone:
	case <-time.After(cfg.Capture.ProducerJoinTimeout):
		logger.Warn("Producer did not stop in time, closing capture source",
			zap.Duration("timeout", cfg.Capture.ProducerJoinTimeout))
		source.Close()
		<-producerDone
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	logger.Info("CSI monitor stopped",
		zap.Int64("frames", engine.Processed()),
		zap.Int64("dropped", engine.Dropped()),
		zap.Int64("decode_errors", producer.DecodeErrors()))
}

func buildStages(cfg *config.Config, profiles *analytics.ProfileStore, logger *zap.Logger) []analytics.Stage {
	var stages []analytics.Stage
	for _, kind := range cfg.Detectors {
		switch kind {
		case models.KindMotion:
			stages = append(stages, analytics.NewMotionDetector(cfg.Motion, logger))
		case models.KindPosture:
			stages = append(stages, analytics.NewPostureStage(cfg.Posture, profiles, logger))
		case models.KindPresence:
			stages = append(stages, analytics.NewPresenceDetector(cfg.Presence, logger))
		}
	}
	return stages
}

// loadProfiles builds the standing and sitting profiles before capture
// starts. A missing profile is logged; posture then reports unknown.
func loadProfiles(ctx context.Context, cfg *config.Config, store *analytics.ProfileStore, logger *zap.Logger) {
	captures := map[string]string{
		analytics.LabelStanding: cfg.Calibration.StandingCapture,
		analytics.LabelSitting:  cfg.Calibration.SittingCapture,
	}

	var wg sync.WaitGroup
	for label, path := range captures {
		if path == "" {
			logger.Warn("No calibration capture configured", zap.String("label", label))
			continue
		}
		wg.Add(1)
		go func(label, path string) {
			defer wg.Done()
			source := capture.FileCalibration{Path: path, Port: cfg.Capture.Port, Antennas: cfg.Capture.Antennas}
			if _, err := store.Load(ctx, label, source); err != nil {
				logger.Error("Reference profile unavailable",
					zap.String("label", label),
					zap.String("capture", path),
					zap.Error(err))
			}
		}(label, path)
	}
	wg.Wait()
}

func openSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (capture.Source, error) {
	if !cfg.LiveCapture() {
		logger.Info("Replaying capture file",
			zap.String("file", cfg.Capture.File),
			zap.Bool("realtime", cfg.Capture.Realtime))
		return capture.OpenFile(cfg.Capture.File, cfg.Capture.Port, cfg.Capture.Realtime)
	}

	return capture.StartLive(ctx, capture.LiveConfig{
		Interface: cfg.Capture.Interface,
		Filter:    cfg.Capture.Filter,
		Port:      cfg.Capture.Port,
	}, logger)
}

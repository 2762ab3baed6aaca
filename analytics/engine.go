package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"csi-motion-monitor/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sinkTimeout = 5 * time.Second

// Sink receives detections, for example a cache, a broker or a log.
type Sink interface {
	Publish(ctx context.Context, d models.Detection) error
}

// FrameRecorder persists the frames that received a posture label.
type FrameRecorder interface {
	RecordFrame(ctx context.Context, frame models.CSIFrame, posture models.PostureResult) error
}

type EngineConfig struct {
	SensorID       string
	QueueSize      int
	EventQueueSize int
}

type dispatchItem struct {
	detection models.Detection
	frame     models.CSIFrame
}

// Engine is the consumer side of the pipeline. The capture producer hands
// frames over with Submit; Run drains them in order and feeds every stage.
// When the hand-off queue is full the oldest queued frame is dropped so
// capture never blocks on a slow consumer.
//
// Detections leave the consumer through three bounded queues: alerts
// (motion, presence) are delivered to sinks ahead of postures, postures
// keep only the newest entries on overflow, and classified frames go to the
// feature log on their own queue so slow sinks never cost log rows.
type Engine struct {
	sensorID  string
	sessionID string
	stages    []Stage
	queue     chan models.CSIFrame
	alerts    chan dispatchItem
	postures  chan dispatchItem
	records   chan dispatchItem
	sinks     []Sink
	recorder  FrameRecorder
	closeOnce sync.Once
	processed atomic.Int64
	dropped   atomic.Int64
	logger    *zap.Logger
}

func NewEngine(cfg EngineConfig, stages []Stage, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.EventQueueSize < 1 {
		cfg.EventQueueSize = 1
	}

	sessionID := uuid.NewString()
	return &Engine{
		sensorID:  cfg.SensorID,
		sessionID: sessionID,
		stages:    stages,
		queue:     make(chan models.CSIFrame, cfg.QueueSize),
		alerts:    make(chan dispatchItem, cfg.EventQueueSize),
		postures:  make(chan dispatchItem, cfg.EventQueueSize),
		records:   make(chan dispatchItem, cfg.EventQueueSize),
		logger:    logger.With(zap.String("sensor_id", cfg.SensorID), zap.String("session_id", sessionID)),
	}
}

// AddSink registers a detection sink. Must be called before Run.
func (e *Engine) AddSink(s Sink) {
	e.sinks = append(e.sinks, s)
}

// SetRecorder registers the feature log. Must be called before Run.
func (e *Engine) SetRecorder(r FrameRecorder) {
	e.recorder = r
}

func (e *Engine) SessionID() string { return e.sessionID }

func (e *Engine) Processed() int64 { return e.processed.Load() }

func (e *Engine) Dropped() int64 { return e.dropped.Load() }

// Submit queues a frame for the consumer. It never blocks.
func (e *Engine) Submit(frame models.CSIFrame) {
	for {
		select {
		case e.queue <- frame:
			return
		default:
		}

		select {
		case old := <-e.queue:
			e.dropped.Add(1)
			framesDroppedTotal.WithLabelValues("queue_full").Inc()
			e.logger.Warn("Frame queue is full, dropping oldest frame",
				zap.Time("dropped_frame_time", old.Timestamp))
		default:
		}
	}
}

// CloseInput tells the consumer that no more frames will be submitted.
// Run returns once the queued frames are processed.
func (e *Engine) CloseInput() {
	e.closeOnce.Do(func() { close(e.queue) })
}

// ProcessFrame runs every stage on one frame and returns the detections.
func (e *Engine) ProcessFrame(frame models.CSIFrame) []models.Detection {
	if err := frame.Validate(); err != nil {
		framesDroppedTotal.WithLabelValues("invalid").Inc()
		e.logger.Debug("Skipping invalid frame", zap.Error(err))
		return nil
	}

	var out []models.Detection
	for _, stage := range e.stages {
		for _, d := range stage.Observe(frame) {
			d.SensorID = e.sensorID
			d.SessionID = e.sessionID
			out = append(out, d)
		}
	}
	e.processed.Add(1)
	framesProcessedTotal.Inc()
	return out
}

// Run consumes frames until ctx is cancelled or the input is closed, then
// waits for queued detections to reach the sinks and the feature log.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.dispatch()
	}()
	go func() {
		defer wg.Done()
		e.recordFrames()
	}()
	defer func() {
		close(e.alerts)
		close(e.postures)
		close(e.records)
		wg.Wait()
	}()

	e.logger.Info("Detector started", zap.Int("stages", len(e.stages)))
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Detector stopping", zap.Int64("processed", e.processed.Load()))
			return
		case frame, ok := <-e.queue:
			if !ok {
				e.logger.Info("Frame input closed", zap.Int64("processed", e.processed.Load()))
				return
			}
			for _, d := range e.ProcessFrame(frame) {
				e.enqueue(dispatchItem{detection: d, frame: frame})
			}
		}
	}
}

func (e *Engine) enqueue(item dispatchItem) {
	if item.detection.Kind != models.KindPosture {
		select {
		case e.alerts <- item:
		default:
			eventsDroppedTotal.WithLabelValues("alert").Inc()
			e.logger.Warn("Alert queue is full, dropping detection",
				zap.String("kind", string(item.detection.Kind)))
		}
		return
	}

	if e.recorder != nil && item.detection.Posture != nil {
		select {
		case e.records <- item:
		default:
			eventsDroppedTotal.WithLabelValues("feature_log").Inc()
			e.logger.Warn("Feature log queue is full, dropping row",
				zap.Time("frame_time", item.frame.Timestamp))
		}
	}

	for {
		select {
		case e.postures <- item:
			return
		default:
		}

		select {
		case <-e.postures:
			eventsDroppedTotal.WithLabelValues("posture").Inc()
		default:
		}
	}
}

// dispatch publishes detections to every sink. Queued alerts always go out
// before queued postures.
func (e *Engine) dispatch() {
	alerts, postures := e.alerts, e.postures
	for alerts != nil || postures != nil {
		select {
		case item, ok := <-alerts:
			if !ok {
				alerts = nil
				continue
			}
			e.publish(item.detection)
			continue
		default:
		}

		select {
		case item, ok := <-alerts:
			if !ok {
				alerts = nil
				continue
			}
			e.publish(item.detection)
		case item, ok := <-postures:
			if !ok {
				postures = nil
				continue
			}
			e.publish(item.detection)
		}
	}
}

func (e *Engine) publish(d models.Detection) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	for _, s := range e.sinks {
		if err := s.Publish(ctx, d); err != nil {
			e.logger.Warn("Failed to publish detection",
				zap.String("kind", string(d.Kind)),
				zap.Error(err))
		}
	}
}

func (e *Engine) recordFrames() {
	for item := range e.records {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := e.recorder.RecordFrame(ctx, item.frame, *item.detection.Posture); err != nil {
			e.logger.Warn("Failed to record frame features", zap.Error(err))
		}
		cancel()
	}
}

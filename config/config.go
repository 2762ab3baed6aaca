package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"csi-motion-monitor/analytics"
	"csi-motion-monitor/models"
)

type CaptureConfig struct {
	Interface           string
	MonitorInterface    string
	Filter              string
	Port                int
	File                string
	Realtime            bool
	Antennas            int
	Provision           bool
	ChanSpec            string
	MACFilter           string
	NexutilParams       string
	QueueSize           int
	ProducerJoinTimeout time.Duration
}

type CalibrationConfig struct {
	StandingCapture string
	SittingCapture  string
}

type RedisConfig struct {
	Enabled     bool
	Addr        string
	Password    string
	DB          int
	StatusTTL   time.Duration
	EventStream string
}

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

type Config struct {
	SensorID       string
	Detectors      []models.DetectionKind
	EventQueueSize int

	Capture     CaptureConfig
	Calibration CalibrationConfig
	Motion      analytics.MotionConfig
	Posture     analytics.PostureConfig
	Presence    analytics.PresenceConfig

	Redis          RedisConfig
	MQTT           MQTTConfig
	FeatureLogPath string
	HTTPAddr       string

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	p := &parser{}

	cfg.SensorID = getEnv("CSI_SENSOR_ID", "csi-sensor")
	detectors, err := analytics.ParseStageNames(getEnv("CSI_DETECTORS", "motion,posture"))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("CSI_DETECTORS: %w", err))
	}
	cfg.Detectors = detectors
	cfg.EventQueueSize = p.int("CSI_EVENT_QUEUE_SIZE", 256)

	cfg.Capture.Interface = getEnv("CSI_INTERFACE", "wlan0")
	cfg.Capture.MonitorInterface = getEnv("CSI_MONITOR_INTERFACE", "mon0")
	cfg.Capture.Filter = getEnv("CSI_CAPTURE_FILTER", "dst port 5500")
	cfg.Capture.Port = p.int("CSI_PORT", 5500)
	cfg.Capture.File = getEnv("CSI_CAPTURE_FILE", "")
	cfg.Capture.Realtime = p.bool("CSI_REPLAY_REALTIME", false)
	cfg.Capture.Antennas = p.int("CSI_ANTENNAS", 1)
	cfg.Capture.Provision = p.bool("CSI_PROVISION", true)
	cfg.Capture.ChanSpec = getEnv("CSI_CHANSPEC", "")
	cfg.Capture.MACFilter = getEnv("CSI_MAC_FILTER", "")
	cfg.Capture.NexutilParams = getEnv("CSI_NEXUTIL_PARAMS", "")
	cfg.Capture.QueueSize = p.int("CSI_QUEUE_SIZE", 64)
	cfg.Capture.ProducerJoinTimeout = p.duration("CSI_PRODUCER_JOIN_TIMEOUT", 2*time.Second)

	cfg.Calibration.StandingCapture = getEnv("CSI_STANDING_CAPTURE", "")
	cfg.Calibration.SittingCapture = getEnv("CSI_SITTING_CAPTURE", "")

	clip := p.float("CSI_CLIP_CEILING", 3000)

	cfg.Motion = analytics.MotionConfig{
		WindowSize:    p.int("CSI_WINDOW_SIZE", 3),
		BaseThreshold: p.float("CSI_BASE_THRESHOLD", 0.12),
		SensitivityK:  p.float("CSI_SENSITIVITY_K", 2.0),
		Cooldown:      p.duration("CSI_COOLDOWN", time.Second),
		ClipCeiling:   clip,
	}

	sitBaseline, err := analytics.ParseSitBaseline(getEnv("CSI_SIT_BASELINE", string(analytics.SitBaselineStanding)))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("CSI_SIT_BASELINE: %w", err))
	}
	cfg.Posture = analytics.PostureConfig{
		StandThreshRatio: p.float("CSI_STAND_RATIO", 2.5),
		SitThreshRatio:   p.float("CSI_SIT_RATIO", 8.0),
		SitBaseline:      sitBaseline,
		ClipCeiling:      clip,
	}

	cfg.Presence = analytics.PresenceConfig{
		Window:      p.int("CSI_PRESENCE_WINDOW", 50),
		SampleRate:  p.float("CSI_PRESENCE_SAMPLE_RATE", 10),
		BandLow:     p.float("CSI_PRESENCE_BAND_LOW", 0.1),
		BandHigh:    p.float("CSI_PRESENCE_BAND_HIGH", 2.0),
		Threshold:   p.float("CSI_PRESENCE_THRESHOLD", 10000),
		ClipCeiling: clip,
	}

	cfg.Redis.Enabled = p.bool("REDIS_ENABLED", true)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = p.int("REDIS_DB", 0)
	cfg.Redis.StatusTTL = p.duration("REDIS_STATUS_TTL", 5*time.Minute)
	cfg.Redis.EventStream = getEnv("REDIS_EVENT_STREAM", "csi:events")

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "csi-motion-monitor")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "csi")
	cfg.MQTT.QoS = byte(p.int("MQTT_QOS", 1))

	cfg.FeatureLogPath = getEnv("FEATURE_LOG_PATH", "")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Motion.WindowSize < 2 {
		errs = append(errs, errors.New("CSI_WINDOW_SIZE must be at least 2"))
	}
	if c.Motion.Cooldown < 0 {
		errs = append(errs, errors.New("CSI_COOLDOWN must not be negative"))
	}
	if c.Motion.SensitivityK < 0 {
		errs = append(errs, errors.New("CSI_SENSITIVITY_K must not be negative"))
	}
	if c.Motion.ClipCeiling <= 0 {
		errs = append(errs, errors.New("CSI_CLIP_CEILING must be positive"))
	}
	if c.Posture.StandThreshRatio <= 0 || c.Posture.SitThreshRatio <= 0 {
		errs = append(errs, errors.New("CSI_STAND_RATIO and CSI_SIT_RATIO must be positive"))
	}
	if c.Presence.Window < 2 {
		errs = append(errs, errors.New("CSI_PRESENCE_WINDOW must be at least 2"))
	}
	if c.Presence.SampleRate <= 0 || c.Presence.BandLow > c.Presence.BandHigh {
		errs = append(errs, errors.New("presence band must satisfy 0 < rate and low <= high"))
	}
	if c.Capture.Port <= 0 || c.Capture.Port > 65535 {
		errs = append(errs, fmt.Errorf("CSI_PORT %d out of range", c.Capture.Port))
	}
	if c.Capture.Antennas < 1 || c.Capture.Antennas > 8 {
		errs = append(errs, errors.New("CSI_ANTENNAS must be between 1 and 8"))
	}
	if c.Capture.QueueSize < 1 || c.EventQueueSize < 1 {
		errs = append(errs, errors.New("queue sizes must be positive"))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, errors.New("MQTT_QOS must be 0, 1 or 2"))
	}
	return errors.Join(errs...)
}

// Enabled reports whether a detector kind was configured.
func (c *Config) Enabled(kind models.DetectionKind) bool {
	for _, k := range c.Detectors {
		if k == kind {
			return true
		}
	}
	return false
}

// LiveCapture is true when frames come from the wireless interface rather
// than a capture file.
func (c *Config) LiveCapture() bool {
	return c.Capture.File == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser collects conversion errors so every bad variable is reported.
type parser struct {
	errs []error
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

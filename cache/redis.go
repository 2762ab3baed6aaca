package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"csi-motion-monitor/models"

	"github.com/go-redis/redis/v8"
)

const eventStreamMaxLen = 10000

type Options struct {
	Addr        string
	Password    string
	DB          int
	StatusTTL   time.Duration
	EventStream string
}

// RedisClient keeps the latest status of each sensor and appends every
// detection to a Redis stream.
type RedisClient struct {
	client      *redis.Client
	statusTTL   time.Duration
	eventStream string

	mu     sync.Mutex
	status map[string]*models.Status
}

func NewRedisClient(ctx context.Context, opts Options) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	return newRedisClient(rdb, opts), nil
}

func newRedisClient(rdb *redis.Client, opts Options) *RedisClient {
	if opts.StatusTTL <= 0 {
		opts.StatusTTL = 5 * time.Minute
	}
	if opts.EventStream == "" {
		opts.EventStream = "csi:events"
	}
	return &RedisClient{
		client:      rdb,
		statusTTL:   opts.StatusTTL,
		eventStream: opts.EventStream,
		status:      make(map[string]*models.Status),
	}
}

func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

func statusKey(sensorID string) string {
	return "csi:status:" + sensorID
}

func (rc *RedisClient) SaveStatus(ctx context.Context, status models.Status) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return rc.client.Set(ctx, statusKey(status.SensorID), data, rc.statusTTL).Err()
}

// GetStatus returns nil, nil when no status is cached for the sensor.
func (rc *RedisClient) GetStatus(ctx context.Context, sensorID string) (*models.Status, error) {
	val, err := rc.client.Get(ctx, statusKey(sensorID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var status models.Status
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Publish implements analytics.Sink: it refreshes the sensor status and
// appends the detection to the event stream.
func (rc *RedisClient) Publish(ctx context.Context, d models.Detection) error {
	rc.mu.Lock()
	st, ok := rc.status[d.SensorID]
	if !ok {
		st = &models.Status{}
		rc.status[d.SensorID] = st
	}
	st.Apply(d)
	snapshot := *st
	rc.mu.Unlock()

	if err := rc.SaveStatus(ctx, snapshot); err != nil {
		return err
	}

	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return rc.client.XAdd(ctx, &redis.XAddArgs{
		Stream: rc.eventStream,
		MaxLen: eventStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind":      string(d.Kind),
			"sensor_id": d.SensorID,
			"data":      string(data),
			"timestamp": d.Timestamp.UnixMilli(),
		},
	}).Err()
}

// RecentEvents reads the newest detections from the event stream.
func (rc *RedisClient) RecentEvents(ctx context.Context, count int64) ([]models.Detection, error) {
	msgs, err := rc.client.XRevRangeN(ctx, rc.eventStream, "+", "-", count).Result()
	if err != nil {
		return nil, err
	}

	out := make([]models.Detection, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var d models.Detection
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

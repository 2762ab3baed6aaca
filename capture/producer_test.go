package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"csi-motion-monitor/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sliceSource struct {
	frames []RawFrame
	err    error
}

func (s *sliceSource) Next(ctx context.Context) (RawFrame, error) {
	if len(s.frames) == 0 {
		if s.err != nil {
			return RawFrame{}, s.err
		}
		return RawFrame{}, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func (s *sliceSource) Close() error { return nil }

type frameCollector struct {
	mu     sync.Mutex
	frames []models.CSIFrame
	closed bool
}

func (c *frameCollector) Submit(frame models.CSIFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
}

func (c *frameCollector) CloseInput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func TestAssembler_SingleAntenna(t *testing.T) {
	a := NewAssembler(1)

	frame, ok, err := a.Add(samplePacket(7, 0, []complex128{3 + 4i, 0, 5}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, frame.Subcarriers())
	assert.Equal(t, 1, frame.Antennas())
	assert.Equal(t, []float64{5, 0, 5}, frame.Column(0))
}

func TestAssembler_GroupsCores(t *testing.T) {
	a := NewAssembler(2)

	_, ok, err := a.Add(samplePacket(1, 0, []complex128{1, 1}))
	require.NoError(t, err)
	assert.False(t, ok)

	// Sequence 2 starts before sequence 1 completes; sequence 1 is discarded.
	_, ok, err = a.Add(samplePacket(2, 1, []complex128{2, 2}))
	require.NoError(t, err)
	assert.False(t, ok)

	frame, ok, err := a.Add(samplePacket(2, 0, []complex128{3, 3}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, frame.Antennas())
	assert.Equal(t, []float64{3, 3}, frame.Column(0))
	assert.Equal(t, []float64{2, 2}, frame.Column(1))

	_, _, err = a.Add(samplePacket(3, 2, []complex128{1, 1}))
	assert.ErrorIs(t, err, models.ErrDecode)
}

func TestProducer_Run(t *testing.T) {
	frames := rawFrames(4, 10*time.Millisecond, constantCSI)
	frames[2].Payload = []byte{0xde, 0xad}
	source := &sliceSource{frames: frames}
	out := &frameCollector{}

	p := NewProducer(source, 1, out, zap.NewNop())
	require.NoError(t, p.Run(context.Background()))

	assert.True(t, out.closed)
	assert.Len(t, out.frames, 3)
	assert.Equal(t, int64(3), p.Frames())
	assert.Equal(t, int64(1), p.DecodeErrors())
	assert.True(t, out.frames[2].Timestamp.Equal(frames[3].Timestamp))
}

func TestProducer_SourceFailure(t *testing.T) {
	source := &sliceSource{err: errors.New("interface went away")}
	out := &frameCollector{}

	err := NewProducer(source, 1, out, zap.NewNop()).Run(context.Background())
	assert.Error(t, err)
	assert.True(t, out.closed)
}

func TestProducer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := &frameCollector{}

	err := NewProducer(&sliceSource{frames: rawFrames(3, time.Millisecond, constantCSI)}, 1, out, zap.NewNop()).Run(ctx)
	assert.NoError(t, err)
	assert.Empty(t, out.frames)
	assert.True(t, out.closed)
}

func TestFileCalibration(t *testing.T) {
	path := writeCapture(t, DefaultPort, rawFrames(6, 100*time.Millisecond, constantCSI))

	frames, err := FileCalibration{Path: path, Port: DefaultPort, Antennas: 1}.Frames(context.Background())
	require.NoError(t, err)
	require.Len(t, frames, 6)
	assert.Equal(t, []float64{5, 10, 5, 1}, frames[0].Column(0))

	_, err = FileCalibration{Path: path + ".missing", Port: DefaultPort, Antennas: 1}.Frames(context.Background())
	assert.Error(t, err)
}

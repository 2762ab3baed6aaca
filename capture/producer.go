package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"csi-motion-monitor/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	packetsCapturedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csi_packets_captured_total",
			Help: "Total number of CSI datagrams read from the capture source",
		},
	)

	decodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csi_decode_errors_total",
			Help: "Total number of captured datagrams that failed to decode",
		},
	)
)

// Submitter is the consumer side of the hand-off queue.
type Submitter interface {
	Submit(frame models.CSIFrame)
	CloseInput()
}

// Assembler groups the per-core reports that share a sequence number into
// one frame with a column per antenna. Incomplete groups are discarded.
type Assembler struct {
	antennas int
	seq      uint16
	started  bool
	first    Packet
	columns  [][]complex128
	filled   int
}

func NewAssembler(antennas int) *Assembler {
	if antennas < 1 {
		antennas = 1
	}
	return &Assembler{antennas: antennas, columns: make([][]complex128, antennas)}
}

// Add returns a complete frame once every antenna of a sequence has been seen.
func (a *Assembler) Add(pkt Packet) (models.CSIFrame, bool, error) {
	if a.antennas == 1 {
		frame, err := models.NewCSIFrame(pkt.Timestamp, [][]complex128{pkt.CSI})
		return frame, err == nil, err
	}

	if int(pkt.Core) >= a.antennas {
		return models.CSIFrame{}, false, fmt.Errorf("%w: core %d outside %d antennas",
			models.ErrDecode, pkt.Core, a.antennas)
	}
	if !a.started || pkt.Sequence != a.seq {
		a.reset(pkt)
	}
	if a.columns[pkt.Core] == nil {
		a.filled++
	}
	a.columns[pkt.Core] = pkt.CSI
	if a.filled < a.antennas {
		return models.CSIFrame{}, false, nil
	}

	frame, err := models.NewCSIFrame(a.first.Timestamp, a.columns)
	a.started = false
	return frame, err == nil, err
}

func (a *Assembler) reset(pkt Packet) {
	a.started = true
	a.seq = pkt.Sequence
	a.first = pkt
	a.filled = 0
	a.columns = make([][]complex128, a.antennas)
}

// Decoder turns raw datagrams into frames.
type Decoder struct {
	assembler *Assembler
}

func NewDecoder(antennas int) *Decoder {
	return &Decoder{assembler: NewAssembler(antennas)}
}

// Decode returns ok=false while a multi-antenna frame is still incomplete.
func (d *Decoder) Decode(raw RawFrame) (models.CSIFrame, bool, error) {
	pkt, err := DecodeNexmon(raw.Timestamp, raw.Payload)
	if err != nil {
		return models.CSIFrame{}, false, err
	}
	return d.assembler.Add(pkt)
}

// Producer pulls datagrams from a source, decodes them and hands the
// frames to the consumer. Decode failures are counted and skipped.
type Producer struct {
	source       Source
	decoder      *Decoder
	out          Submitter
	frames       atomic.Int64
	decodeErrors atomic.Int64
	logger       *zap.Logger
}

func NewProducer(source Source, antennas int, out Submitter, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		source:  source,
		decoder: NewDecoder(antennas),
		out:     out,
		logger:  logger,
	}
}

func (p *Producer) Frames() int64 { return p.frames.Load() }

func (p *Producer) DecodeErrors() int64 { return p.decodeErrors.Load() }

// Run captures until the source is exhausted or ctx is cancelled. The
// consumer input is closed on return.
func (p *Producer) Run(ctx context.Context) error {
	defer p.out.CloseInput()

	for {
		if ctx.Err() != nil {
			p.logger.Info("Capture stopping", zap.Int64("frames", p.frames.Load()))
			return nil
		}

		raw, err := p.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.logger.Info("Capture source exhausted",
					zap.Int64("frames", p.frames.Load()),
					zap.Int64("decode_errors", p.decodeErrors.Load()))
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("capture source failed: %w", err)
		}
		packetsCapturedTotal.Inc()

		frame, ok, err := p.decoder.Decode(raw)
		if err != nil {
			p.decodeErrors.Add(1)
			decodeErrorsTotal.Inc()
			p.logger.Debug("Skipping undecodable frame",
				zap.Time("capture_time", raw.Timestamp),
				zap.Int("bytes", len(raw.Payload)),
				zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		p.frames.Add(1)
		p.out.Submit(frame)
	}
}

// FileCalibration reads calibration frames from a pcap file.
type FileCalibration struct {
	Path     string
	Port     int
	Antennas int
}

func (fc FileCalibration) Frames(ctx context.Context) ([]models.CSIFrame, error) {
	raws, err := ReadCapture(fc.Path, fc.Port)
	if err != nil {
		return nil, err
	}

	decoder := NewDecoder(fc.Antennas)
	frames := make([]models.CSIFrame, 0, len(raws))
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, ok, err := decoder.Decode(raw)
		if err != nil || !ok {
			continue
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

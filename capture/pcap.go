package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// DefaultPort is the UDP port Nexmon reports CSI on.
const DefaultPort = 5500

// RawFrame is one captured UDP payload addressed to the CSI port.
type RawFrame struct {
	Timestamp time.Time
	Payload   []byte
}

// Source yields raw frames in capture order. Next returns io.EOF when the
// source is exhausted.
type Source interface {
	Next(ctx context.Context) (RawFrame, error)
	Close() error
}

// packetReader extracts CSI datagrams from a pcap stream.
type packetReader struct {
	reader *pcapgo.Reader
	port   layers.UDPPort
	count  int
}

func newPacketReader(r io.Reader, port int) (*packetReader, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	return &packetReader{reader: reader, port: layers.UDPPort(port)}, nil
}

func (pr *packetReader) next() (RawFrame, error) {
	for {
		data, ci, err := pr.reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return RawFrame{}, io.EOF
			}
			return RawFrame{}, err
		}
		pr.count++

		packet := gopacket.NewPacket(data, pr.reader.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || udp.DstPort != pr.port || len(udp.Payload) == 0 {
			continue
		}

		payload := make([]byte, len(udp.Payload))
		copy(payload, udp.Payload)
		return RawFrame{Timestamp: ci.Timestamp, Payload: payload}, nil
	}
}

// ReadCapture loads every CSI datagram from a pcap file.
func ReadCapture(path string, port int) ([]RawFrame, error) {
	src, err := OpenFile(path, port, false)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var frames []RawFrame
	for {
		frame, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("failed to read %s: %w", path, err)
		}
		frames = append(frames, frame)
	}
}

// FileSource replays a pcap file. With realtime set it waits between
// frames for the gaps recorded in the capture.
type FileSource struct {
	file     *os.File
	reader   *packetReader
	realtime bool
	lastTS   time.Time
}

func OpenFile(path string, port int, realtime bool) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	reader, err := newPacketReader(f, port)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &FileSource{file: f, reader: reader, realtime: realtime}, nil
}

func (fs *FileSource) Next(ctx context.Context) (RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return RawFrame{}, err
	}
	frame, err := fs.reader.next()
	if err != nil {
		return RawFrame{}, err
	}

	if fs.realtime && !fs.lastTS.IsZero() {
		if gap := frame.Timestamp.Sub(fs.lastTS); gap > 0 {
			timer := time.NewTimer(gap)
			select {
			case <-ctx.Done():
				timer.Stop()
				return RawFrame{}, ctx.Err()
			case <-timer.C:
			}
		}
	}
	fs.lastTS = frame.Timestamp
	return frame, nil
}

func (fs *FileSource) Close() error {
	return fs.file.Close()
}

// WritePCAP writes Nexmon payloads as UDP/IPv4/Ethernet packets addressed
// to port.
func WritePCAP(w io.Writer, port int, frames []RawFrame) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return err
	}

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      1,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 10, 10, 10),
		DstIP:    net.IPv4(255, 255, 255, 255),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(port),
		DstPort: layers.UDPPort(port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}

	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	for _, f := range frames {
		buf := gopacket.NewSerializeBuffer()
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(f.Payload)); err != nil {
			return fmt.Errorf("failed to serialise packet: %w", err)
		}
		data := buf.Bytes()
		ci := gopacket.CaptureInfo{
			Timestamp:     f.Timestamp,
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := pw.WritePacket(ci, data); err != nil {
			return err
		}
	}
	return nil
}

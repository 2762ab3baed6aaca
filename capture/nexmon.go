// Package capture turns Nexmon CSI UDP traffic into CSI frames: it reads
// pcap files or a live tcpdump stream, decodes the Nexmon payload,
// assembles per-core packets into multi-antenna frames and feeds them to
// the detection engine.
package capture

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"csi-motion-monitor/models"
)

const (
	nexmonMagic      = 0x1111
	nexmonHeaderSize = 18
)

// Packet is one decoded Nexmon CSI report for a single core/stream.
type Packet struct {
	Timestamp time.Time
	RSSI      int8
	FrameCtl  uint8
	Source    net.HardwareAddr
	Sequence  uint16
	Core      uint8
	Stream    uint8
	ChanSpec  uint16
	Chip      uint16
	CSI       []complex128
}

// DecodeNexmon parses a Nexmon CSI UDP payload (bcm43455c0 layout,
// interleaved int16 real/imaginary pairs). Subcarriers are returned in
// ascending frequency order.
func DecodeNexmon(ts time.Time, payload []byte) (Packet, error) {
	if len(payload) <= nexmonHeaderSize {
		return Packet{}, fmt.Errorf("%w: payload of %d bytes is too short", models.ErrDecode, len(payload))
	}
	if magic := binary.LittleEndian.Uint16(payload[0:2]); magic != nexmonMagic {
		return Packet{}, fmt.Errorf("%w: bad magic 0x%04x", models.ErrDecode, magic)
	}

	body := payload[nexmonHeaderSize:]
	if len(body)%4 != 0 {
		return Packet{}, fmt.Errorf("%w: csi body of %d bytes is not a whole number of samples",
			models.ErrDecode, len(body))
	}

	coreStream := binary.LittleEndian.Uint16(payload[12:14])
	pkt := Packet{
		Timestamp: ts,
		RSSI:      int8(payload[2]),
		FrameCtl:  payload[3],
		Source:    net.HardwareAddr(append([]byte(nil), payload[4:10]...)),
		Sequence:  binary.LittleEndian.Uint16(payload[10:12]),
		Core:      uint8(coreStream & 0x7),
		Stream:    uint8((coreStream >> 3) & 0x7),
		ChanSpec:  binary.LittleEndian.Uint16(payload[14:16]),
		Chip:      binary.LittleEndian.Uint16(payload[16:18]),
	}

	nsub := len(body) / 4
	raw := make([]complex128, nsub)
	for i := 0; i < nsub; i++ {
		re := int16(binary.LittleEndian.Uint16(body[i*4:]))
		im := int16(binary.LittleEndian.Uint16(body[i*4+2:]))
		raw[i] = complex(float64(re), float64(im))
	}
	pkt.CSI = fftShift(raw)
	return pkt, nil
}

// EncodeNexmon is the inverse of DecodeNexmon. It is used to synthesise
// captures.
func EncodeNexmon(pkt Packet) []byte {
	nsub := len(pkt.CSI)
	buf := make([]byte, nexmonHeaderSize+nsub*4)
	binary.LittleEndian.PutUint16(buf[0:2], nexmonMagic)
	buf[2] = byte(pkt.RSSI)
	buf[3] = pkt.FrameCtl
	copy(buf[4:10], pkt.Source)
	binary.LittleEndian.PutUint16(buf[10:12], pkt.Sequence)
	binary.LittleEndian.PutUint16(buf[12:14], uint16(pkt.Core&0x7)|uint16(pkt.Stream&0x7)<<3)
	binary.LittleEndian.PutUint16(buf[14:16], pkt.ChanSpec)
	binary.LittleEndian.PutUint16(buf[16:18], pkt.Chip)

	raw := ifftShift(pkt.CSI)
	for i, v := range raw {
		binary.LittleEndian.PutUint16(buf[nexmonHeaderSize+i*4:], uint16(int16(real(v))))
		binary.LittleEndian.PutUint16(buf[nexmonHeaderSize+i*4+2:], uint16(int16(imag(v))))
	}
	return buf
}

// fftShift moves the zero-frequency bin to the centre, like numpy.fft.fftshift.
func fftShift(in []complex128) []complex128 {
	n := len(in)
	out := make([]complex128, n)
	shift := n / 2
	for i, v := range in {
		out[(i+shift)%n] = v
	}
	return out
}

func ifftShift(in []complex128) []complex128 {
	n := len(in)
	out := make([]complex128, n)
	shift := (n + 1) / 2
	for i, v := range in {
		out[(i+shift)%n] = v
	}
	return out
}

package main

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"net"
	"os"
	"time"

	"csi-motion-monitor/capture"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run tools/synthcap.go <output.pcap> <standing|sitting|moving|breathing> [frames] [subcarriers] [rate_hz]")
		fmt.Println("Example: go run tools/synthcap.go pcaps/standing.pcap standing 100 256 10")
		os.Exit(1)
	}

	output := os.Args[1]
	mode := os.Args[2]
	frames := 100
	subcarriers := 256
	rate := 10.0

	if len(os.Args) > 3 {
		fmt.Sscanf(os.Args[3], "%d", &frames)
	}
	if len(os.Args) > 4 {
		fmt.Sscanf(os.Args[4], "%d", &subcarriers)
	}
	if len(os.Args) > 5 {
		fmt.Sscanf(os.Args[5], "%g", &rate)
	}

	fmt.Printf("Synthetic capture:\n")
	fmt.Printf("  Output: %s\n", output)
	fmt.Printf("  Mode: %s\n", mode)
	fmt.Printf("  Frames: %d\n", frames)
	fmt.Printf("  Subcarriers: %d\n", subcarriers)
	fmt.Printf("  Rate: %.1f Hz\n\n", rate)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	start := time.Now()
	interval := time.Duration(float64(time.Second) / rate)

	raws := make([]capture.RawFrame, 0, frames)
	for i := 0; i < frames; i++ {
		t := float64(i) / rate
		csi := make([]complex128, subcarriers)
		for sc := range csi {
			amp := amplitude(mode, sc, subcarriers, t, rng)
			csi[sc] = cmplx.Rect(amp, rng.Float64()*2*math.Pi)
		}
		payload := capture.EncodeNexmon(capture.Packet{
			RSSI:     -40,
			Source:   net.HardwareAddr{0xdc, 0xa6, 0x32, 0x72, 0x02, 0x8a},
			Sequence: uint16(i),
			ChanSpec: 0xe02a,
			Chip:     0x4345,
			CSI:      csi,
		})
		raws = append(raws, capture.RawFrame{
			Timestamp: start.Add(time.Duration(i) * interval),
			Payload:   payload,
		})
	}

	f, err := os.Create(output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", output, err)
		os.Exit(1)
	}
	defer f.Close()

	if err := capture.WritePCAP(f, capture.DefaultPort, raws); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", output, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d frames\n", len(raws))
}

func amplitude(mode string, sc, n int, t float64, rng *rand.Rand) float64 {
	x := float64(sc) / float64(n)
	base := 900 + 300*math.Sin(2*math.Pi*3*x)
	noise := rng.NormFloat64() * 10

	switch mode {
	case "sitting":
		return base*0.8 + 150*math.Cos(2*math.Pi*5*x) + noise
	case "moving":
		return base + rng.NormFloat64()*250
	case "breathing":
		return base*(1+0.15*math.Sin(2*math.Pi*0.3*t)) + noise
	default:
		return base + noise
	}
}

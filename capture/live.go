package capture

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type LiveConfig struct {
	Interface string
	Filter    string
	Port      int
	// Command overrides the capture command line. It must write a pcap
	// stream to stdout.
	Command []string
}

func (c LiveConfig) argv() []string {
	if len(c.Command) > 0 {
		return c.Command
	}
	args := []string{"tcpdump", "-i", c.Interface, "-U", "-w", "-"}
	return append(args, strings.Fields(c.Filter)...)
}

// LiveSource reads CSI datagrams from a running tcpdump process.
type LiveSource struct {
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	reader    *packetReader
	closeOnce sync.Once
	logger    *zap.Logger
}

// StartLive launches the capture process and waits for its pcap header.
func StartLive(ctx context.Context, cfg LiveConfig, logger *zap.Logger) (*LiveSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	argv := cfg.argv()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	logger.Info("Capture process started",
		zap.String("command", strings.Join(argv, " ")),
		zap.Int("pid", cmd.Process.Pid))

	ls := &LiveSource{cmd: cmd, stdout: stdout, logger: logger}
	reader, err := newPacketReader(stdout, cfg.Port)
	if err != nil {
		ls.Close()
		return nil, err
	}
	ls.reader = reader
	return ls, nil
}

// Next blocks until the next CSI datagram arrives. Cancelling the context
// used in StartLive terminates the process and unblocks Next.
func (ls *LiveSource) Next(ctx context.Context) (RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return RawFrame{}, err
	}
	return ls.reader.next()
}

// Close kills the capture process if it is still running.
func (ls *LiveSource) Close() error {
	ls.closeOnce.Do(func() {
		if ls.cmd.Process != nil {
			_ = ls.cmd.Process.Kill()
		}
		ls.stdout.Close()
		if werr := ls.cmd.Wait(); werr != nil {
			ls.logger.Debug("Capture process exited", zap.Error(werr))
		}
	})
	return nil
}

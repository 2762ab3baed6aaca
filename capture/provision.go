package capture

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ErrProvisioning means the wireless interface could not be prepared for
// capture.
var ErrProvisioning = errors.New("interface provisioning failed")

// Runner executes one external command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type ProvisionConfig struct {
	Interface        string
	MonitorInterface string
	// ChanSpec and MACFilter configure the Nexmon CSI extractor via mcp,
	// e.g. "36/80" and "dc:a6:32:72:02:8a". Both are optional.
	ChanSpec  string
	MACFilter string
	// NexutilParams is the base64 extractor configuration passed to nexutil.
	NexutilParams string
}

// Provisioner puts the wireless interface into monitor mode so Nexmon CSI
// reports can be captured.
type Provisioner struct {
	cfg    ProvisionConfig
	runner Runner
	logger *zap.Logger
}

func NewProvisioner(cfg ProvisionConfig, runner Runner, logger *zap.Logger) *Provisioner {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MonitorInterface == "" {
		cfg.MonitorInterface = "mon0"
	}
	return &Provisioner{cfg: cfg, runner: runner, logger: logger}
}

// Commands lists the setup steps in order, without the stale monitor
// interface removal.
func (p *Provisioner) Commands() [][]string {
	var cmds [][]string
	if p.cfg.ChanSpec != "" {
		mcp := []string{"mcp", "-C", "1", "-N", "1", "-c", p.cfg.ChanSpec}
		if p.cfg.MACFilter != "" {
			mcp = append(mcp, "-m", p.cfg.MACFilter)
		}
		cmds = append(cmds, mcp)
	}
	cmds = append(cmds, []string{"ifconfig", p.cfg.Interface, "up"})
	if p.cfg.NexutilParams != "" {
		cmds = append(cmds, []string{"nexutil", "-I" + p.cfg.Interface, "-s500", "-b", "-l34", "-v" + p.cfg.NexutilParams})
	}
	cmds = append(cmds,
		[]string{"iw", "dev", p.cfg.Interface, "interface", "add", p.cfg.MonitorInterface, "type", "monitor"},
		[]string{"ip", "link", "set", p.cfg.MonitorInterface, "up"},
	)
	return cmds
}

func (p *Provisioner) Setup(ctx context.Context) error {
	if out, err := p.runner.Run(ctx, "iw", "dev", p.cfg.MonitorInterface, "del"); err == nil {
		p.logger.Info("Removed stale monitor interface", zap.String("interface", p.cfg.MonitorInterface))
	} else {
		p.logger.Debug("No stale monitor interface",
			zap.String("interface", p.cfg.MonitorInterface),
			zap.String("output", strings.TrimSpace(string(out))))
	}

	for _, cmd := range p.Commands() {
		out, err := p.runner.Run(ctx, cmd[0], cmd[1:]...)
		if err != nil {
			return fmt.Errorf("%w: %s: %v: %s", ErrProvisioning,
				strings.Join(cmd, " "), err, strings.TrimSpace(string(out)))
		}
		p.logger.Info("Provisioning step done", zap.String("command", strings.Join(cmd, " ")))
	}
	return nil
}

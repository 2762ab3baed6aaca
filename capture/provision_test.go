package capture

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	calls  []string
	failOn map[string]bool
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, line)
	if r.failOn[line] {
		return []byte("command failed"), errors.New("exit status 1")
	}
	return nil, nil
}

func TestProvisioner_Setup(t *testing.T) {
	runner := &fakeRunner{failOn: map[string]bool{"iw dev mon0 del": true}}
	p := NewProvisioner(ProvisionConfig{
		Interface:     "wlan0",
		ChanSpec:      "36/80",
		MACFilter:     "dc:a6:32:72:02:8a",
		NexutilParams: "KuABEQGIAQDcpjJyAooAAAAAAAAAAAAAAAAAAAAAAAAAAAAA==",
	}, runner, zap.NewNop())

	require.NoError(t, p.Setup(context.Background()))
	assert.Equal(t, []string{
		"iw dev mon0 del",
		"mcp -C 1 -N 1 -c 36/80 -m dc:a6:32:72:02:8a",
		"ifconfig wlan0 up",
		"nexutil -Iwlan0 -s500 -b -l34 -vKuABEQGIAQDcpjJyAooAAAAAAAAAAAAAAAAAAAAAAAAAAAAA==",
		"iw dev wlan0 interface add mon0 type monitor",
		"ip link set mon0 up",
	}, runner.calls)
}

func TestProvisioner_MinimalCommands(t *testing.T) {
	p := NewProvisioner(ProvisionConfig{Interface: "wlan1", MonitorInterface: "csi0"}, &fakeRunner{}, nil)

	assert.Equal(t, [][]string{
		{"ifconfig", "wlan1", "up"},
		{"iw", "dev", "wlan1", "interface", "add", "csi0", "type", "monitor"},
		{"ip", "link", "set", "csi0", "up"},
	}, p.Commands())
}

func TestProvisioner_StepFailure(t *testing.T) {
	runner := &fakeRunner{failOn: map[string]bool{"ifconfig wlan0 up": true}}
	p := NewProvisioner(ProvisionConfig{Interface: "wlan0"}, runner, zap.NewNop())

	err := p.Setup(context.Background())
	assert.ErrorIs(t, err, ErrProvisioning)
	assert.Contains(t, err.Error(), "command failed")
	assert.Len(t, runner.calls, 2)
}

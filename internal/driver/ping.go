package driver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/openexhibits/tessera-core/internal/component"
	"github.com/openexhibits/tessera-core/internal/health"
)

// Pinger measures round-trip latency with a single ICMP echo. Implements
// the health poller's LatencyProber.
//
// Privileged mode uses raw sockets and needs CAP_NET_RAW; unprivileged
// mode uses UDP-based ICMP, which most Linux hosts allow once
// net.ipv4.ping_group_range is set. When neither is available the error
// maps to health.ErrPermissionDenied so the poller degrades latency to
// unknown instead of spamming failures.
type Pinger struct {
	privileged bool
}

// NewPinger creates a latency prober. privileged selects raw-socket ICMP.
func NewPinger(privileged bool) *Pinger {
	return &Pinger{privileged: privileged}
}

// Latency sends one echo to the address (host or host:port; the port is
// ignored) and returns the round-trip time.
func (p *Pinger) Latency(ctx context.Context, address string) (time.Duration, error) {
	host := pingHost(address)

	pinger, err := probing.NewPinger(host)
	if err != nil {
		return 0, fmt.Errorf("pinging %s: %w", host, err)
	}
	pinger.SetPrivileged(p.privileged)
	pinger.Count = 1

	if deadline, ok := ctx.Deadline(); ok {
		pinger.Timeout = time.Until(deadline)
	} else {
		pinger.Timeout = 3 * time.Second
	}

	if err := pinger.RunWithContext(ctx); err != nil {
		if isPermissionError(err) {
			return 0, fmt.Errorf("pinging %s: %w: %v", host, health.ErrPermissionDenied, err)
		}
		return 0, fmt.Errorf("pinging %s: %w", host, err)
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("pinging %s: no reply", host)
	}
	return stats.AvgRtt, nil
}

// WakeStateProber checks reachability of wake-on-LAN hosts by echo.
// Implements the health poller's Prober for the wol kind: the snapshot
// carries only the reachable flag, which the registry maps to
// ONLINE/OFFLINE for this kind.
type WakeStateProber struct {
	pinger *Pinger
}

// NewWakeStateProber creates a reachability prober over the pinger.
func NewWakeStateProber(p *Pinger) *WakeStateProber {
	return &WakeStateProber{pinger: p}
}

// Probe reports whether the host answers an echo.
func (w *WakeStateProber) Probe(ctx context.Context, c component.Component) (component.Snapshot, error) {
	if c.Address == "" {
		return component.Snapshot{}, fmt.Errorf("probing %s: no address registered", c.ID)
	}

	_, err := w.pinger.Latency(ctx, c.Address)
	if err != nil {
		if errors.Is(err, health.ErrPermissionDenied) {
			return component.Snapshot{}, err
		}
		// No reply is a result, not an error: the host is off.
		return component.Snapshot{Reachable: false}, nil
	}
	return component.Snapshot{Reachable: true, PowerState: "on"}, nil
}

// pingHost strips an optional port from a component address.
func pingHost(address string) string {
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	return address
}

// isPermissionError recognises the raw-socket / ping-socket privilege
// failures the ICMP library surfaces on Linux.
func isPermissionError(err error) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "operation not permitted") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "socket: permission")
}

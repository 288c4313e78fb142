package driver

import (
	"context"
	"fmt"
	"net"

	"github.com/mdlayher/wol"

	"github.com/openexhibits/tessera-core/internal/component"
)

// DefaultWakeAddr is the broadcast address magic packets go to when no
// override is configured. Port 9 is the conventional discard port.
const DefaultWakeAddr = "255.255.255.255:9"

// WOLSender wakes components by UDP magic packet. Implements the
// registry's Waker.
type WOLSender struct {
	addr   string
	logger Logger
}

// NewWOLSender creates a wake-on-LAN sender. addr is the broadcast
// address to send to; empty uses DefaultWakeAddr.
func NewWOLSender(addr string) *WOLSender {
	if addr == "" {
		addr = DefaultWakeAddr
	}
	return &WOLSender{addr: addr, logger: noopLogger{}}
}

// SetLogger sets the sender's logger.
func (w *WOLSender) SetLogger(logger Logger) { w.logger = logger }

// Wake sends a magic packet to the component's hardware address. The
// component must have a MAC registered; waking is fire-and-forget, so a
// nil return means only that the packet left this host.
func (w *WOLSender) Wake(ctx context.Context, c *component.Component) error {
	if c.HardwareAddress == "" {
		return fmt.Errorf("waking %s: no hardware address registered", c.ID)
	}

	mac, err := net.ParseMAC(c.HardwareAddress)
	if err != nil {
		return fmt.Errorf("waking %s: bad hardware address %q: %w", c.ID, c.HardwareAddress, err)
	}

	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("waking %s: %w", c.ID, err)
	}
	defer client.Close()

	if err := client.Wake(w.addr, mac); err != nil {
		return fmt.Errorf("waking %s: %w", c.ID, err)
	}

	w.logger.Info("magic packet sent", "id", c.ID, "mac", mac.String(), "addr", w.addr)
	return nil
}

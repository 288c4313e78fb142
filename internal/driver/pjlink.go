package driver

import (
	"bufio"
	"context"
	"crypto/md5"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/openexhibits/tessera-core/internal/component"
)

// pjlinkPort is the well-known PJLink control port.
const pjlinkPort = "4352"

// PJLinkProber queries projectors over the PJLink class 1 protocol:
// power state, cumulative lamp hours, and the six-digit error status.
// Implements the health poller's Prober for the projector kind.
type PJLinkProber struct {
	password string // empty when the projector runs without auth
	logger   Logger
}

// NewPJLinkProber creates a projector prober. password is the PJLink
// password, empty for open projectors.
func NewPJLinkProber(password string) *PJLinkProber {
	return &PJLinkProber{password: password, logger: noopLogger{}}
}

// SetLogger sets the prober's logger.
func (p *PJLinkProber) SetLogger(logger Logger) { p.logger = logger }

// Probe opens one control session and queries POWR, LAMP and ERST. A
// connect failure returns an unreachable snapshot with no error — an
// unplugged projector is a result. Protocol-level failures after connect
// are errors.
func (p *PJLinkProber) Probe(ctx context.Context, c component.Component) (component.Snapshot, error) {
	if c.Address == "" {
		return component.Snapshot{}, fmt.Errorf("probing %s: no address registered", c.ID)
	}

	addr := c.Address
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, pjlinkPort)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return component.Snapshot{Reachable: false}, nil
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	session, err := newPJLinkSession(conn, p.password)
	if err != nil {
		return component.Snapshot{}, fmt.Errorf("probing %s: %w", c.ID, err)
	}

	snap := component.Snapshot{Reachable: true}

	power, err := session.query("POWR")
	if err != nil {
		return component.Snapshot{}, fmt.Errorf("probing %s: %w", c.ID, err)
	}
	snap.PowerState = parsePJLinkPower(power)

	// LAMP and ERST are optional on some models; a per-query error status
	// degrades the field rather than failing the probe.
	if lamp, err := session.query("LAMP"); err == nil {
		snap.LampHours = parsePJLinkLamp(lamp)
	} else {
		p.logger.Debug("lamp query unsupported", "id", c.ID, "error", err)
	}
	if erst, err := session.query("ERST"); err == nil {
		snap.ErrorStatus = parsePJLinkErrors(erst)
	} else {
		p.logger.Debug("error-status query unsupported", "id", c.ID, "error", err)
	}

	return snap, nil
}

// pjlinkSession is one authenticated control connection.
type pjlinkSession struct {
	conn   net.Conn
	reader *bufio.Reader
	prefix string // md5(seed+password) when the projector demands auth
}

// newPJLinkSession consumes the greeting line and prepares the auth
// prefix if the projector requires one.
func newPJLinkSession(conn net.Conn, password string) (*pjlinkSession, error) {
	s := &pjlinkSession{conn: conn, reader: bufio.NewReader(conn)}

	greeting, err := s.reader.ReadString('\r')
	if err != nil {
		return nil, fmt.Errorf("reading greeting: %w", err)
	}
	greeting = strings.TrimSpace(greeting)

	switch {
	case strings.HasPrefix(greeting, "PJLINK 0"):
		// No authentication.
	case strings.HasPrefix(greeting, "PJLINK 1 "):
		seed := strings.TrimPrefix(greeting, "PJLINK 1 ")
		if password == "" {
			return nil, fmt.Errorf("projector requires authentication, no password configured")
		}
		s.prefix = fmt.Sprintf("%x", md5.Sum([]byte(seed+password)))
	default:
		return nil, fmt.Errorf("unexpected greeting %q", greeting)
	}

	return s, nil
}

// query issues one class-1 GET command ("POWR", "LAMP", "ERST") and
// returns the response body after the '=' sign.
func (s *pjlinkSession) query(command string) (string, error) {
	if _, err := fmt.Fprintf(s.conn, "%s%%1%s ?\r", s.prefix, command); err != nil {
		return "", fmt.Errorf("%s query: %w", command, err)
	}
	// The auth prefix is only sent on the first command of a session.
	s.prefix = ""

	line, err := s.reader.ReadString('\r')
	if err != nil {
		return "", fmt.Errorf("%s reply: %w", command, err)
	}

	return parsePJLinkResponse(command, strings.TrimSpace(line))
}

// parsePJLinkResponse validates a "%1XXXX=body" reply and extracts the
// body. PJLink error codes come back as errors.
func parsePJLinkResponse(command, line string) (string, error) {
	want := "%1" + command + "="
	if !strings.HasPrefix(strings.ToUpper(line), want) {
		return "", fmt.Errorf("%s reply malformed: %q", command, line)
	}

	body := line[len(want):]
	switch strings.ToUpper(body) {
	case "ERR1":
		return "", fmt.Errorf("%s: undefined command", command)
	case "ERR2":
		return "", fmt.Errorf("%s: out of parameter", command)
	case "ERR3":
		return "", fmt.Errorf("%s: unavailable in current state", command)
	case "ERR4":
		return "", fmt.Errorf("%s: projector failure", command)
	case "ERRA":
		return "", fmt.Errorf("%s: authentication failed", command)
	}
	return body, nil
}

// parsePJLinkPower maps the POWR code to a readable power state.
func parsePJLinkPower(body string) string {
	switch strings.TrimSpace(body) {
	case "0":
		return "off"
	case "1":
		return "on"
	case "2":
		return "cooling"
	case "3":
		return "warming"
	default:
		return "unknown"
	}
}

// parsePJLinkLamp extracts the highest cumulative lamp-hours figure from
// a LAMP body ("<hours> <on>" pairs, one per lamp).
func parsePJLinkLamp(body string) int {
	fields := strings.Fields(body)
	hours := 0
	for i := 0; i+1 < len(fields); i += 2 {
		if h, err := strconv.Atoi(fields[i]); err == nil && h > hours {
			hours = h
		}
	}
	return hours
}

// pjlinkErrorParts names the six ERST digits in protocol order.
var pjlinkErrorParts = []string{"fan", "lamp", "temperature", "cover", "filter", "other"}

// parsePJLinkErrors renders a six-digit ERST body as a comma-separated
// list of failing parts ("lamp:warning,temperature:error"), empty when
// everything reports ok.
func parsePJLinkErrors(body string) string {
	body = strings.TrimSpace(body)
	if len(body) != len(pjlinkErrorParts) {
		return ""
	}

	var faults []string
	for i, part := range pjlinkErrorParts {
		switch body[i] {
		case '1':
			faults = append(faults, part+":warning")
		case '2':
			faults = append(faults, part+":error")
		}
	}
	return strings.Join(faults, ",")
}

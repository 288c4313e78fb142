package driver

import (
	"bufio"
	"net"
	"strings"
	"testing"
)

func TestParsePJLinkResponse(t *testing.T) {
	tests := []struct {
		name    string
		command string
		line    string
		want    string
		wantErr bool
	}{
		{"power on", "POWR", "%1POWR=1", "1", false},
		{"lamp pair", "LAMP", "%1LAMP=8262 1", "8262 1", false},
		{"clean error status", "ERST", "%1ERST=000000", "000000", false},
		{"lowercase header accepted", "POWR", "%1powr=1", "1", false},
		{"undefined command", "LAMP", "%1LAMP=ERR1", "", true},
		{"unavailable state", "POWR", "%1POWR=ERR3", "", true},
		{"auth failure", "POWR", "%1POWR=ERRA", "", true},
		{"wrong command echoed", "POWR", "%1LAMP=1", "", true},
		{"garbage line", "POWR", "hello", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePJLinkResponse(tt.command, tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParsePJLinkPower(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"0", "off"},
		{"1", "on"},
		{"2", "cooling"},
		{"3", "warming"},
		{"9", "unknown"},
		{" 1 ", "on"},
	}

	for _, tt := range tests {
		if got := parsePJLinkPower(tt.body); got != tt.want {
			t.Errorf("parsePJLinkPower(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestParsePJLinkLamp(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"single lamp", "8262 1", 8262},
		{"dual lamp takes highest", "100 1 250 0", 250},
		{"zero hours", "0 0", 0},
		{"empty body", "", 0},
		{"malformed hours ignored", "abc 1 40 1", 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parsePJLinkLamp(tt.body); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParsePJLinkErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"all clear", "000000", ""},
		{"lamp warning", "010000", "lamp:warning"},
		{"fan and temperature", "200200", "fan:error,temperature:error"},
		{"everything on fire", "222222", "fan:error,lamp:error,temperature:error,cover:error,filter:error,other:error"},
		{"wrong length ignored", "00", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parsePJLinkErrors(tt.body); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// TestPJLinkSessionAuthPrefix drives a session against an in-memory pipe
// acting as the projector and checks the md5 digest is prepended to the
// first command only.
func TestPJLinkSessionAuthPrefix(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(server)
		if _, err := server.Write([]byte("PJLINK 1 498e4a67\r")); err != nil {
			done <- err
			return
		}

		first, err := reader.ReadString('\r')
		if err != nil {
			done <- err
			return
		}
		// md5("498e4a67" + "JBMIAProjectorLink") from the PJLink spec's
		// worked example.
		wantPrefix := "5d8409bc1c3fa39749434aa3a5c38682%1POWR ?"
		if !strings.HasPrefix(first, wantPrefix) {
			t.Errorf("first command %q, want prefix %q", first, wantPrefix)
		}
		if _, err := server.Write([]byte("%1POWR=1\r")); err != nil {
			done <- err
			return
		}

		second, err := reader.ReadString('\r')
		if err != nil {
			done <- err
			return
		}
		if !strings.HasPrefix(second, "%1LAMP ?") {
			t.Errorf("second command %q, want bare %%1LAMP", second)
		}
		_, err = server.Write([]byte("%1LAMP=100 1\r"))
		done <- err
	}()

	session, err := newPJLinkSession(client, "JBMIAProjectorLink")
	if err != nil {
		t.Fatalf("session setup: %v", err)
	}

	power, err := session.query("POWR")
	if err != nil {
		t.Fatalf("power query: %v", err)
	}
	if power != "1" {
		t.Errorf("power = %q, want \"1\"", power)
	}

	lamp, err := session.query("LAMP")
	if err != nil {
		t.Fatalf("lamp query: %v", err)
	}
	if lamp != "100 1" {
		t.Errorf("lamp = %q, want \"100 1\"", lamp)
	}

	if err := <-done; err != nil {
		t.Fatalf("fake projector: %v", err)
	}
}

func TestPJLinkSessionRejectsAuthWithoutPassword(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		_, _ = server.Write([]byte("PJLINK 1 abcd1234\r"))
	}()

	if _, err := newPJLinkSession(client, ""); err == nil {
		t.Fatal("expected error for auth-required projector with no password")
	}
}

func TestPingHost(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"10.0.40.21", "10.0.40.21"},
		{"10.0.40.21:8080", "10.0.40.21"},
		{"kiosk-1.local", "kiosk-1.local"},
		{"[fd00::21]:443", "fd00::21"},
	}

	for _, tt := range tests {
		if got := pingHost(tt.address); got != tt.want {
			t.Errorf("pingHost(%q) = %q, want %q", tt.address, got, tt.want)
		}
	}
}

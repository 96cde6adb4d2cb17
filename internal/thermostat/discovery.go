package thermostat

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// SSDP constants for Radio Thermostat discovery.
const (
	ssdpAddress      = "239.255.255.250:1900"
	ssdpSearchTarget = "com.marvell.wm.system:1.0"
	ssdpMaxWait      = 2 // seconds, MX header
)

var ssdpRequest = []byte("M-SEARCH * HTTP/1.1\r\n" +
	"HOST: " + ssdpAddress + "\r\n" +
	"MAN: \"ssdp:discover\"\r\n" +
	fmt.Sprintf("MX: %d\r\n", ssdpMaxWait) +
	"ST: " + ssdpSearchTarget + "\r\n" +
	"\r\n")

// Discover sends an SSDP M-SEARCH and returns the host of the first
// thermostat that answers.
//
// Parameters:
//   - ctx: Cancels the search early
//   - timeout: How long to wait for replies
//
// Returns:
//   - string: Device host (IP or IP:port)
//   - error: ErrDiscoveryFailed when nothing answers in time
func Discover(ctx context.Context, timeout time.Duration) (string, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return "", fmt.Errorf("%w: opening socket: %w", ErrDiscoveryFailed, err)
	}
	defer conn.Close()

	dst, err := net.ResolveUDPAddr("udp4", ssdpAddress)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}
	if _, err := conn.WriteTo(ssdpRequest, dst); err != nil {
		return "", fmt.Errorf("%w: sending M-SEARCH: %w", ErrDiscoveryFailed, err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}

	// Unblock ReadFrom when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %w", ErrDiscoveryFailed, ctx.Err())
			}
			return "", fmt.Errorf("%w: no reply within %v", ErrDiscoveryFailed, timeout)
		}
		host, perr := parseSSDPResponse(buf[:n])
		if perr != nil {
			// Other SSDP devices answer too; keep listening.
			continue
		}
		return host, nil
	}
}

// parseSSDPResponse extracts the device host from an M-SEARCH reply whose
// search target is the thermostat's.
func parseSSDPResponse(data []byte) (string, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), nil)
	if err != nil {
		return "", fmt.Errorf("parsing SSDP reply: %w", err)
	}
	defer resp.Body.Close()

	if st := resp.Header.Get("ST"); st != ssdpSearchTarget {
		return "", fmt.Errorf("unexpected search target %q", st)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("SSDP reply has no LOCATION")
	}
	u, err := url.Parse(location)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid LOCATION %q", location)
	}
	return u.Host, nil
}

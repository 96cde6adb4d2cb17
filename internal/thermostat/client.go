package thermostat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Device API paths.
const (
	pathTstat   = "/tstat"
	pathTtemp   = "/tstat/ttemp"
	pathDatalog = "/tstat/datalog"
	pathName    = "/sys/name"
)

const (
	// defaultTimeout bounds each request when the caller passes zero.
	defaultTimeout = 10 * time.Second

	// maxResponseSize caps how much of a device reply is read.
	maxResponseSize = 64 << 10
)

// Client talks to a Radio Thermostat over its local HTTP/JSON API.
//
// Every call is a fresh request; the client keeps no device state.
//
// Thread Safety: All methods are safe for concurrent use, but the firmware
// handles one request at a time, so callers should serialise access.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the thermostat at host ("192.168.1.40" or
// "http://192.168.1.40:80").
//
// Parameters:
//   - host: Device address, with or without scheme
//   - timeout: Upper bound on each HTTP request (0 uses the default)
func New(host string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := strings.TrimRight(host, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the device root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Name returns the user-assigned thermostat name from /sys/name.
func (c *Client) Name(ctx context.Context) (string, error) {
	var doc nameDoc
	if err := c.get(ctx, pathName, &doc); err != nil {
		return "", err
	}
	if doc.Name == "" {
		return "", fmt.Errorf("%w: name", ErrMissingField)
	}
	return doc.Name, nil
}

// Snapshot reads /tstat, /tstat/ttemp and /tstat/datalog and assembles one
// Snapshot. Any failure discards the partial result.
func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	var st tstatDoc
	if err := c.get(ctx, pathTstat, &st); err != nil {
		return nil, err
	}
	var tt ttempDoc
	if err := c.get(ctx, pathTtemp, &tt); err != nil {
		return nil, err
	}
	var dl Datalog
	if err := c.get(ctx, pathDatalog, &dl); err != nil {
		return nil, err
	}
	return buildSnapshot(st, tt, dl)
}

// buildSnapshot validates the raw documents and converts them.
func buildSnapshot(st tstatDoc, tt ttempDoc, dl Datalog) (*Snapshot, error) {
	var missing []string
	check := func(name string, present bool) {
		if !present {
			missing = append(missing, name)
		}
	}
	check("temp", st.Temp != nil)
	check("tmode", st.TMode != nil)
	check("fmode", st.FMode != nil)
	check("override", st.Override != nil)
	check("hold", st.Hold != nil)
	check("tstate", st.TState != nil)
	check("fstate", st.FState != nil)
	check("t_heat", tt.THeat != nil)
	check("t_cool", tt.TCool != nil)
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}

	return &Snapshot{
		HeatSetpoint: floatReading(*tt.THeat),
		CoolSetpoint: floatReading(*tt.TCool),
		SystemMode:   codeReading(systemModeNames, *st.TMode),
		FanMode:      codeReading(fanModeNames, *st.FMode),
		Hold:         codeReading(holdNames, *st.Hold),
		Override:     codeReading(holdNames, *st.Override),
		Temperature:  floatReading(*st.Temp),
		SystemStatus: codeReading(systemStatusNames, *st.TState),
		FanStatus:    codeReading(fanStatusNames, *st.FState),
		Runtime:      dl,
	}, nil
}

// SetHeatSetpoint writes t_heat. The device switches to a temporary hold
// unless hold is enabled.
func (c *Client) SetHeatSetpoint(ctx context.Context, degrees float64) error {
	return c.post(ctx, map[string]any{"t_heat": degrees})
}

// SetCoolSetpoint writes t_cool.
func (c *Client) SetCoolSetpoint(ctx context.Context, degrees float64) error {
	return c.post(ctx, map[string]any{"t_cool": degrees})
}

// SetSystemMode writes tmode (0 Off, 1 Heat, 2 Cool, 3 Auto).
func (c *Client) SetSystemMode(ctx context.Context, code int) error {
	return c.post(ctx, map[string]any{"tmode": code})
}

// SetFanMode writes fmode (0 Auto, 1 Auto/Circulate, 2 On).
func (c *Client) SetFanMode(ctx context.Context, code int) error {
	return c.post(ctx, map[string]any{"fmode": code})
}

// SetHold writes hold (0 Disabled, 1 Enabled).
func (c *Client) SetHold(ctx context.Context, code int) error {
	return c.post(ctx, map[string]any{"hold": code})
}

// HealthCheck verifies the device answers on /tstat.
func (c *Client) HealthCheck(ctx context.Context) error {
	var st tstatDoc
	return c.get(ctx, pathTstat, &st)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidResponse, path, err)
	}
	return nil
}

// post sends a JSON object to /tstat. The firmware answers {"success": 0}
// or {"error": ...}, always with status 200.
func (c *Client) post(ctx context.Context, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathTstat, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request for %s: %w", pathTstat, err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}

	var result map[string]json.RawMessage
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidResponse, pathTstat, err)
	}
	if reason, failed := result["error"]; failed {
		return fmt.Errorf("%w: %s (sent %s)", ErrCommandRejected, reason, payload)
	}
	if _, ok := result["success"]; !ok {
		return fmt.Errorf("%w: %s: %s", ErrInvalidResponse, pathTstat, body)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrDeviceUnreachable, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrDeviceUnreachable, req.URL.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s %s: %d", ErrUnexpectedStatus, req.Method, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}

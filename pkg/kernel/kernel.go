package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgsim/devicectl/pkg/devices"
)

const (
	methodPing           = "ping"
	methodSetMode        = "simulation.set_device_mode"
	methodSetManual      = "simulation.set_device_manual_setpoint"
	methodUpdateProps    = "simulation.update_device_properties"
	methodSetRandom      = "simulation.set_device_random_config"
	methodSetHistorical  = "simulation.set_device_historical_config"
	methodSetSimParams   = "simulation.set_device_sim_params"
	methodGetAllDevices  = "simulation.get_all_devices"
	methodListSqliteDevs = "simulation.list_sqlite_devices"
	methodGetTimeRange   = "simulation.get_historical_time_range"
	codeDomainError      = -32000
)

var ErrTimeout = errors.New("kernel call timed out")

// RPCError is a failure reported by the kernel, either as a jsonrpc error
// object or as a {"status":"error"} result.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("kernel rpc error %d: %s", e.Code, e.Message)
}

// RangeRequest asks for the replayable span of a historical file.
type RangeRequest struct {
	Path           string
	Source         string
	TimeColumn     string
	TimeFormat     string
	SourceDeviceID string
}

// TimeRange is a replayable span in unix seconds.
type TimeRange struct {
	Start int64 `json:"start_time"`
	End   int64 `json:"end_time"`
	Rows  int   `json:"row_count"`
}

// Commander is the remote command surface of the simulation kernel. All
// calls block until the kernel acknowledged the command or the per-call
// timeout expired.
type Commander interface {
	Ping(ctx context.Context) error
	SetDeviceMode(ctx context.Context, deviceID, mode string) error
	SetManualSetpoint(ctx context.Context, deviceID string, activePowerKW, reactivePowerKVAr float64) error
	UpdateDeviceProperties(ctx context.Context, deviceID string, properties map[string]interface{}) error
	SetRandomConfig(ctx context.Context, deviceID string, minPowerKW, maxPowerKW float64) error
	SetHistoricalConfig(ctx context.Context, deviceID string, config interface{}) error
	SetSimParams(ctx context.Context, deviceID string, params map[string]interface{}) error
	Devices(ctx context.Context) ([]devices.Device, error)
	SqliteDevices(ctx context.Context, path string) ([]string, error)
	HistoricalTimeRange(ctx context.Context, req RangeRequest) (*TimeRange, error)
	Close() error
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type transport interface {
	call(ctx context.Context, method string, params interface{}) (json.RawMessage, error)
	close() error
}

// Client implements Commander over an http or stdio transport.
type Client struct {
	transport transport
}

// NewHTTP talks jsonrpc to a kernel listening on an http endpoint.
func NewHTTP(url string, timeout time.Duration) *Client {
	return &Client{transport: newHTTPTransport(url, timeout)}
}

// NewProcess spawns the kernel as a child process and talks
// newline-delimited jsonrpc over its stdin and stdout.
func NewProcess(command string, timeout time.Duration) (*Client, error) {
	t, err := startProcess(command, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{transport: t}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, methodPing, nil)
}

func (c *Client) SetDeviceMode(ctx context.Context, deviceID, mode string) error {
	return c.do(ctx, methodSetMode, map[string]interface{}{
		"device_id": deviceID,
		"mode":      mode,
	})
}

func (c *Client) SetManualSetpoint(ctx context.Context, deviceID string, activePowerKW, reactivePowerKVAr float64) error {
	return c.do(ctx, methodSetManual, map[string]interface{}{
		"device_id":      deviceID,
		"active_power":   activePowerKW,
		"reactive_power": reactivePowerKVAr,
	})
}

func (c *Client) UpdateDeviceProperties(ctx context.Context, deviceID string, properties map[string]interface{}) error {
	return c.do(ctx, methodUpdateProps, map[string]interface{}{
		"device_id":  deviceID,
		"properties": properties,
	})
}

func (c *Client) SetRandomConfig(ctx context.Context, deviceID string, minPowerKW, maxPowerKW float64) error {
	return c.do(ctx, methodSetRandom, map[string]interface{}{
		"device_id": deviceID,
		"min_power": minPowerKW,
		"max_power": maxPowerKW,
	})
}

func (c *Client) SetHistoricalConfig(ctx context.Context, deviceID string, config interface{}) error {
	return c.do(ctx, methodSetHistorical, map[string]interface{}{
		"device_id": deviceID,
		"config":    config,
	})
}

func (c *Client) SetSimParams(ctx context.Context, deviceID string, params map[string]interface{}) error {
	return c.do(ctx, methodSetSimParams, map[string]interface{}{
		"device_id": deviceID,
		"params":    params,
	})
}

func (c *Client) Devices(ctx context.Context) ([]devices.Device, error) {
	raw, err := c.transport.call(ctx, methodGetAllDevices, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Status  string           `json:"status"`
		Message string           `json:"message"`
		Devices []devices.Device `json:"devices"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: decode result: %w", methodGetAllDevices, err)
	}
	if out.Status == "error" {
		return nil, &RPCError{Code: codeDomainError, Message: out.Message}
	}
	return out.Devices, nil
}

func (c *Client) SqliteDevices(ctx context.Context, path string) ([]string, error) {
	raw, err := c.transport.call(ctx, methodListSqliteDevs, map[string]interface{}{
		"file_path": path,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Status  string   `json:"status"`
		Message string   `json:"message"`
		Devices []string `json:"devices"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: decode result: %w", methodListSqliteDevs, err)
	}
	if out.Status == "error" {
		return nil, &RPCError{Code: codeDomainError, Message: out.Message}
	}
	return out.Devices, nil
}

func (c *Client) HistoricalTimeRange(ctx context.Context, req RangeRequest) (*TimeRange, error) {
	params := map[string]interface{}{
		"file_path":   req.Path,
		"source_type": req.Source,
	}
	if req.TimeColumn != "" {
		params["time_column"] = req.TimeColumn
	}
	if req.TimeFormat != "" {
		params["time_format"] = req.TimeFormat
	}
	if req.SourceDeviceID != "" {
		params["source_device_id"] = req.SourceDeviceID
	}
	raw, err := c.transport.call(ctx, methodGetTimeRange, params)
	if err != nil {
		return nil, err
	}
	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		TimeRange
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: decode result: %w", methodGetTimeRange, err)
	}
	if out.Status == "error" {
		return nil, &RPCError{Code: codeDomainError, Message: out.Message}
	}
	return &out.TimeRange, nil
}

func (c *Client) Close() error {
	return c.transport.close()
}

func (c *Client) do(ctx context.Context, method string, params interface{}) error {
	raw, err := c.transport.call(ctx, method, params)
	if err != nil {
		return err
	}
	if err := statusError(raw); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// statusError maps {"status":"error"} results onto an RPCError. Results
// that are not objects carry no status and pass through.
func statusError(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var s struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	if s.Status == "error" {
		return &RPCError{Code: codeDomainError, Message: s.Message}
	}
	return nil
}

// Copyright 2025 Joseph Cumines
//
// devicectl JSON output

package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
)

// Device is one physical device from `xcrun devicectl list devices --json-output`.
type Device struct {
	Identifier       string `json:"identifier"`
	DeviceProperties struct {
		Name            string `json:"name"`
		OSVersionNumber string `json:"osVersionNumber"`
	} `json:"deviceProperties"`
	HardwareProperties struct {
		Platform    string `json:"platform"`
		ProductType string `json:"productType"`
		UDID        string `json:"udid"`
	} `json:"hardwareProperties"`
	ConnectionProperties struct {
		TransportType string `json:"transportType"`
		TunnelState   string `json:"tunnelState"`
		PairingState  string `json:"pairingState"`
	} `json:"connectionProperties"`
}

// ID returns the UDID, falling back to the CoreDevice identifier.
func (d Device) ID() string {
	if d.HardwareProperties.UDID != "" {
		return d.HardwareProperties.UDID
	}
	return d.Identifier
}

// Connected reports whether the device tunnel is up.
func (d Device) Connected() bool {
	return d.ConnectionProperties.TunnelState == "connected"
}

// ParseDeviceList decodes devicectl list output.
func ParseDeviceList(data []byte) ([]Device, error) {
	var doc struct {
		Result *struct {
			Devices []Device `json:"devices"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, toolerr.ParseFailuref("failed to parse device list: %v", err)
	}
	if doc.Result == nil {
		return nil, toolerr.ParseFailuref("failed to parse device list: missing result")
	}
	return doc.Result.Devices, nil
}

// FormatDeviceList renders devices for display.
func FormatDeviceList(devices []Device) string {
	if len(devices) == 0 {
		return "No physical Apple devices found."
	}
	var b strings.Builder
	b.WriteString("Connected Devices:\n")
	for _, d := range devices {
		fmt.Fprintf(&b, "\n- %s\n", d.DeviceProperties.Name)
		fmt.Fprintf(&b, "  UDID: %s\n", d.ID())
		if d.HardwareProperties.ProductType != "" {
			fmt.Fprintf(&b, "  Model: %s\n", d.HardwareProperties.ProductType)
		}
		if d.HardwareProperties.Platform != "" {
			fmt.Fprintf(&b, "  Platform: %s %s\n", d.HardwareProperties.Platform, d.DeviceProperties.OSVersionNumber)
		}
		state := "Disconnected"
		if d.Connected() {
			state = "Connected"
		}
		if t := d.ConnectionProperties.TransportType; t != "" {
			state += " (" + t + ")"
		}
		fmt.Fprintf(&b, "  Connection: %s\n", state)
	}
	return b.String()
}

// LaunchedPID extracts result.process.processIdentifier from the devicectl
// launch JSON.
func LaunchedPID(data []byte) (int, bool) {
	var doc struct {
		Result struct {
			Process struct {
				ProcessIdentifier int `json:"processIdentifier"`
			} `json:"process"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, false
	}
	pid := doc.Result.Process.ProcessIdentifier
	return pid, pid > 0
}

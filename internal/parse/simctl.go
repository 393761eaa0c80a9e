// Copyright 2025 Joseph Cumines
//
// simctl device listings

package parse

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
)

// Simulator is one entry of `xcrun simctl list devices available --json`.
type Simulator struct {
	UDID        string `json:"udid"`
	Name        string `json:"name"`
	State       string `json:"state"`
	IsAvailable bool   `json:"isAvailable"`
	// Runtime is the runtime identifier the device was listed under.
	Runtime string `json:"-"`
}

// Booted reports whether the simulator is running.
func (s Simulator) Booted() bool {
	return s.State == "Booted"
}

// SimulatorList is a parsed simctl listing, grouped by runtime.
type SimulatorList struct {
	Devices map[string][]Simulator `json:"devices"`
}

// ParseSimulatorList decodes simctl JSON output.
func ParseSimulatorList(data []byte) (*SimulatorList, error) {
	var l SimulatorList
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, toolerr.ParseFailuref("failed to parse simulator list: %v", err)
	}
	if l.Devices == nil {
		return nil, toolerr.ParseFailuref("failed to parse simulator list: missing devices")
	}
	for runtime, sims := range l.Devices {
		for i := range sims {
			sims[i].Runtime = runtime
		}
	}
	return &l, nil
}

// Runtimes returns the runtime identifiers in sorted order.
func (l *SimulatorList) Runtimes() []string {
	out := make([]string, 0, len(l.Devices))
	for k := range l.Devices {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Find returns the first available simulator with the given UDID or name.
// An exact UDID match is preferred over a name match.
func (l *SimulatorList) Find(idOrName string) (Simulator, bool) {
	var byName *Simulator
	for _, runtime := range l.Runtimes() {
		for _, s := range l.Devices[runtime] {
			if s.UDID == idOrName {
				return s, true
			}
			if byName == nil && s.Name == idOrName {
				byName = &s
			}
		}
	}
	if byName != nil {
		return *byName, true
	}
	return Simulator{}, false
}

// RuntimeName turns com.apple.CoreSimulator.SimRuntime.iOS-17-2 into iOS 17.2.
func RuntimeName(id string) string {
	name := id
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	platform, version, ok := strings.Cut(name, "-")
	if !ok {
		return name
	}
	return platform + " " + strings.ReplaceAll(version, "-", ".")
}

// Format renders available simulators grouped by runtime.
func (l *SimulatorList) Format() string {
	var b strings.Builder
	b.WriteString("Available Simulators:\n")
	for _, runtime := range l.Runtimes() {
		var sims []Simulator
		for _, s := range l.Devices[runtime] {
			if s.IsAvailable {
				sims = append(sims, s)
			}
		}
		if len(sims) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", RuntimeName(runtime))
		for _, s := range sims {
			fmt.Fprintf(&b, "- %s (%s)", s.Name, s.UDID)
			if s.Booted() {
				b.WriteString(" [Booted]")
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

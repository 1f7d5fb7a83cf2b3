package capture

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/google/gopacket/pcap"
	gateway "github.com/net-byte/go-gateway"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/core"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/log"
)

const (
	activityWindow   = 3 * time.Second
	probeSnapLen     = 128
	probeReadTimeout = 250 * time.Millisecond
)

// Device describes one capture interface. Index is the 1-based position
// in enumeration order; it is the number the CLI and the prompt accept.
type Device struct {
	Index       int
	Name        string
	Description string
	Prefixes    []netip.Prefix
}

func (d Device) String() string {
	desc := d.Description
	if desc == "" {
		desc = "no description"
	}
	addrs := make([]string, 0, len(d.Prefixes))
	for _, p := range d.Prefixes {
		addrs = append(addrs, p.Addr().String())
	}
	if len(addrs) == 0 {
		return fmt.Sprintf("[%d] %s (%s)", d.Index, d.Name, desc)
	}
	return fmt.Sprintf("[%d] %s (%s) %s", d.Index, d.Name, desc, strings.Join(addrs, " "))
}

// ListDevices enumerates the host's capture interfaces in pcap order.
func ListDevices() ([]Device, error) {
	ifs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}
	devs := make([]Device, 0, len(ifs))
	for i, itf := range ifs {
		d := Device{Index: i + 1, Name: itf.Name, Description: itf.Description}
		for _, addr := range itf.Addresses {
			if p, ok := prefixOf(addr); ok {
				d.Prefixes = append(d.Prefixes, p)
			}
		}
		devs = append(devs, d)
	}
	return devs, nil
}

func prefixOf(addr pcap.InterfaceAddress) (netip.Prefix, bool) {
	a, ok := netip.AddrFromSlice(addr.IP)
	if !ok {
		return netip.Prefix{}, false
	}
	a = a.Unmap()

	ones, bits := 0, 0
	if addr.Netmask != nil {
		ones, bits = addr.Netmask.Size()
	}
	switch {
	case bits == a.BitLen():
		return netip.PrefixFrom(a, ones), true
	case bits == 128 && a.Is4():
		return netip.PrefixFrom(a, ones-96), true
	default:
		// Missing or inconsistent mask: fall back to a host prefix so a
		// bad mask can never swallow the whole address space.
		return netip.PrefixFrom(a, a.BitLen()), true
	}
}

// ResolveDevice maps a CLI device argument onto a capture interface:
// a 1-based index from the devices listing, or the literal "auto" for
// traffic-based detection.
func ResolveDevice(arg string, logger log.Logger) (Device, error) {
	if logger == nil {
		logger = log.GetLogger()
	}
	devs, err := ListDevices()
	if err != nil {
		return Device{}, err
	}
	if len(devs) == 0 {
		return Device{}, core.ErrNoDevice
	}
	if strings.EqualFold(strings.TrimSpace(arg), "auto") {
		return autoDetect(devs, logger)
	}
	return deviceByIndex(devs, arg)
}

func deviceByIndex(devs []Device, arg string) (Device, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return Device{}, fmt.Errorf("device must be a list index or \"auto\", got %q: %w", arg, core.ErrDeviceNotFound)
	}
	if idx < 1 || idx > len(devs) {
		return Device{}, fmt.Errorf("device index %d outside 1..%d: %w", idx, len(devs), core.ErrDeviceNotFound)
	}
	return devs[idx-1], nil
}

// autoDetect watches every addressable interface for a few seconds and
// picks the busiest. On a quiet network nothing is captured anywhere,
// so it falls back to the interface that owns the default route.
func autoDetect(devs []Device, logger log.Logger) (Device, error) {
	candidates := probeCandidates(devs)
	if len(candidates) == 0 {
		return Device{}, core.ErrNoDevice
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	logger.Infof("probing %d interfaces for %s of tcp traffic", len(candidates), activityWindow)
	if best, ok := busiestDevice(candidates, activityWindow, logger); ok {
		return best, nil
	}

	logger.Infof("no traffic seen, falling back to the default-route interface")
	gw, err := gateway.DiscoverGatewayIPv4()
	if err != nil {
		return Device{}, fmt.Errorf("failed to discover default gateway: %w", err)
	}
	gwAddr, ok := netip.AddrFromSlice(gw.To4())
	if !ok {
		return Device{}, core.ErrNoDevice
	}
	if d, ok := deviceForGateway(candidates, gwAddr); ok {
		logger.Infof("default gateway %s is reachable through %s", gwAddr, d.Name)
		return d, nil
	}
	return Device{}, core.ErrNoDevice
}

// probeCandidates keeps interfaces holding a routable IPv4 address;
// loopback and link-local never carry the game connection.
func probeCandidates(devs []Device) []Device {
	var out []Device
	for _, d := range devs {
		for _, p := range d.Prefixes {
			a := p.Addr()
			if a.Is4() && !a.IsLoopback() && !a.IsLinkLocalUnicast() {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

func deviceForGateway(devs []Device, gw netip.Addr) (Device, bool) {
	for _, d := range devs {
		for _, p := range d.Prefixes {
			if p.Contains(gw) {
				return d, true
			}
		}
	}
	return Device{}, false
}

// busiestDevice counts filtered packets on every candidate in parallel
// and returns the one that saw the most, if any saw traffic at all.
func busiestDevice(candidates []Device, window time.Duration, logger log.Logger) (Device, bool) {
	type sample struct {
		dev     Device
		packets int
	}
	results := make(chan sample, len(candidates))
	for _, d := range candidates {
		go func(d Device) {
			results <- sample{dev: d, packets: countPackets(d.Name, window, logger)}
		}(d)
	}

	var best Device
	bestCount := 0
	for range candidates {
		s := <-results
		logger.Debugf("interface %s saw %d packets", s.dev.Name, s.packets)
		if s.packets > bestCount {
			best, bestCount = s.dev, s.packets
		}
	}
	return best, bestCount > 0
}

func countPackets(device string, window time.Duration, logger log.Logger) int {
	handle, err := pcap.OpenLive(device, probeSnapLen, false, probeReadTimeout)
	if err != nil {
		logger.Debugf("cannot probe %s: %v", device, err)
		return 0
	}
	defer handle.Close()
	if err := handle.SetBPFFilter(bpfFilter); err != nil {
		logger.Debugf("cannot filter %s: %v", device, err)
		return 0
	}

	count := 0
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		_, _, err := handle.ReadPacketData()
		switch err {
		case nil:
			count++
		case pcap.NextErrorTimeoutExpired:
			// Idle interval, keep watching.
		default:
			return count
		}
	}
	return count
}

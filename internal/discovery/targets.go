package discovery

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/projectdiscovery/mapcidr"
	"github.com/robgonnella/hashwatch/internal/miner"
)

// MaxTargets bounds how many addresses one scan may expand to
const MaxTargets = 1 << 16

// ExpandTargets turns CIDRs ("192.168.1.0/24"), ranges
// ("192.168.1.10-192.168.1.40" or "192.168.1.10-40") and single hosts into
// a de-duplicated address list, keeping first-seen order. Network and
// broadcast addresses of a CIDR are skipped.
func ExpandTargets(targets []string) ([]string, error) {
	seen := map[string]bool{}
	hosts := []string{}

	add := func(h string) error {
		if seen[h] {
			return nil
		}

		if len(hosts) >= MaxTargets {
			return fmt.Errorf("scan exceeds %d addresses", MaxTargets)
		}

		seen[h] = true
		hosts = append(hosts, h)

		return nil
	}

	for _, raw := range targets {
		t := strings.TrimSpace(raw)

		if t == "" {
			continue
		}

		var expanded []string
		var err error

		switch {
		case strings.Contains(t, "/"):
			expanded, err = expandCIDR(t)
		case strings.Contains(t, "-") && net.ParseIP(strings.SplitN(t, "-", 2)[0]) != nil:
			expanded, err = expandRange(t)
		default:
			if !miner.ValidHost(t) {
				err = fmt.Errorf("invalid target %q", t)
			}
			expanded = []string{t}
		}

		if err != nil {
			return nil, err
		}

		for _, h := range expanded {
			if err := add(h); err != nil {
				return nil, err
			}
		}
	}

	return hosts, nil
}

func expandCIDR(cidr string) ([]string, error) {
	_, network, err := net.ParseCIDR(cidr)

	if err != nil {
		return nil, fmt.Errorf("invalid cidr %q: %w", cidr, err)
	}

	ones, bits := network.Mask.Size()

	if bits-ones > 16 {
		return nil, fmt.Errorf("cidr %q is too large to scan", cidr)
	}

	ips, err := mapcidr.IPAddresses(cidr)

	if err != nil {
		return nil, fmt.Errorf("invalid cidr %q: %w", cidr, err)
	}

	// /31 and /32 have no network or broadcast address
	if bits == 32 && ones < 31 {
		first := network.IP.To4()
		last := broadcast(network)

		filtered := make([]string, 0, len(ips))

		for _, ip := range ips {
			parsed := net.ParseIP(ip).To4()

			if parsed.Equal(first) || parsed.Equal(last) {
				continue
			}

			filtered = append(filtered, ip)
		}

		ips = filtered
	}

	return ips, nil
}

func expandRange(r string) ([]string, error) {
	parts := strings.SplitN(r, "-", 2)

	start := net.ParseIP(strings.TrimSpace(parts[0])).To4()

	if start == nil {
		return nil, fmt.Errorf("invalid range %q: only ipv4 ranges are supported", r)
	}

	endStr := strings.TrimSpace(parts[1])
	end := net.ParseIP(endStr).To4()

	// short form: last octet only
	if end == nil {
		octet, err := strconv.Atoi(endStr)

		if err != nil || octet < 0 || octet > 255 {
			return nil, fmt.Errorf("invalid range %q", r)
		}

		end = net.IPv4(start[0], start[1], start[2], byte(octet)).To4()
	}

	from := binary.BigEndian.Uint32(start)
	to := binary.BigEndian.Uint32(end)

	if to < from {
		return nil, fmt.Errorf("invalid range %q: end before start", r)
	}

	if to-from >= MaxTargets {
		return nil, fmt.Errorf("range %q exceeds %d addresses", r, MaxTargets)
	}

	ips := make([]string, 0, to-from+1)

	for n := from; ; n++ {
		ip := make(net.IP, 4)
		binary.BigEndian.PutUint32(ip, n)
		ips = append(ips, ip.String())

		if n == to {
			break
		}
	}

	return ips, nil
}

func broadcast(network *net.IPNet) net.IP {
	ip := network.IP.To4()
	mask := network.Mask

	out := make(net.IP, 4)

	for i := range ip {
		out[i] = ip[i] | ^mask[i]
	}

	return out
}

// Package blocklist parses IP-range blocklist files and turns them
// into session.IPFilterRule entries for the backend's IP filter, per
// spec §4.8.
package blocklist

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/tinytorrent/tinytorrentd/internal/session"
)

// Filter is a parsed set of blocked address ranges.
type Filter struct {
	Rules []session.IPFilterRule
}

// Parse reads one rule per non-blank, non-comment line from r. Each
// line is either a "start-end" address range, a CIDR (v4 or v6), or a
// bare address (treated as a single-address range).
func Parse(r io.Reader) (*Filter, error) {
	f := &Filter{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rule, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("blocklist line %d: %w", lineNo, err)
		}
		f.Rules = append(f.Rules, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

func parseLine(line string) (session.IPFilterRule, error) {
	if start, end, ok := strings.Cut(line, "-"); ok {
		startIP := net.ParseIP(strings.TrimSpace(start))
		endIP := net.ParseIP(strings.TrimSpace(end))
		if startIP == nil || endIP == nil {
			return session.IPFilterRule{}, fmt.Errorf("invalid address range %q", line)
		}
		return session.IPFilterRule{Start: ipTo16(startIP), End: ipTo16(endIP), Blocked: true}, nil
	}

	if strings.Contains(line, "/") {
		_, ipnet, err := net.ParseCIDR(line)
		if err != nil {
			return session.IPFilterRule{}, fmt.Errorf("invalid CIDR %q: %w", line, err)
		}
		start := ipnet.IP
		mask := ipnet.Mask
		end := make(net.IP, len(start))
		for i := range start {
			end[i] = start[i] | ^mask[i]
		}
		return session.IPFilterRule{Start: ipTo16(start), End: ipTo16(end), Blocked: true}, nil
	}

	ip := net.ParseIP(line)
	if ip == nil {
		return session.IPFilterRule{}, fmt.Errorf("invalid address %q", line)
	}
	b := ipTo16(ip)
	return session.IPFilterRule{Start: b, End: b, Blocked: true}, nil
}

// ipTo16 stores an IPv4 address in the low 4 bytes of a 16-byte array
// (matching session.IPFilterRule's documented convention) and an IPv6
// address in its native 16-byte form.
func ipTo16(ip net.IP) [16]byte {
	var b [16]byte
	if v4 := ip.To4(); v4 != nil {
		copy(b[12:], v4)
		return b
	}
	copy(b[:], ip.To16())
	return b
}

// Package discovery advertises and locates the directory service over mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"
)

const domainName = "local."

var ErrNotFound = errors.New("directory service not found")

// Advertise registers the directory on port under service. Call Shutdown on
// the result to withdraw it.
func Advertise(instance, service string, port int) (*zeroconf.Server, error) {
	server, err := zeroconf.Register(instance, service, domainName, port, []string{"proto=whiteboard"}, nil)
	if err != nil {
		return nil, fmt.Errorf("register mdns service: %w", err)
	}
	logrus.WithFields(logrus.Fields{"component": "discovery", "service": service, "port": port}).Info("advertising directory")
	return server, nil
}

// Lookup browses service until the first entry with an address is found or
// ctx is done. It returns the entry as host and port.
func Lookup(ctx context.Context, service string) (string, int, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", 0, fmt.Errorf("mdns resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, service, domainName, entries); err != nil {
		return "", 0, fmt.Errorf("browse %s: %w", service, err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", 0, ErrNotFound
		case entry, ok := <-entries:
			if !ok {
				return "", 0, ErrNotFound
			}
			if host, ok := entryHost(entry); ok {
				logrus.WithFields(logrus.Fields{"component": "discovery", "instance": entry.Instance, "host": host, "port": entry.Port}).Info("found directory")
				return host, entry.Port, nil
			}
		}
	}
}

func entryHost(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil {
		return "", false
	}
	addrs := make([]net.IP, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	addrs = append(addrs, entry.AddrIPv4...)
	addrs = append(addrs, entry.AddrIPv6...)
	if len(addrs) == 0 {
		return "", false
	}
	return addrs[0].String(), true
}

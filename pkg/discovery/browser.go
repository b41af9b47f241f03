package discovery

import (
	"context"
	"fmt"
	"time"
)

// Browser provides mDNS service browsing capabilities.
type Browser interface {
	// Browse searches for instances of serviceType. Services are emitted
	// once, when first seen. The channel is closed when the context is
	// cancelled or browsing completes.
	Browse(ctx context.Context, serviceType string) (<-chan *Service, error)

	// Lookup returns the named instance of serviceType, or the first
	// instance found when instance is empty.
	Lookup(ctx context.Context, serviceType, instance string) (*Service, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds Lookup when ctx has no deadline.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
		Interface:     "",
	}
}

// FilterFunc is a function that filters browse results.
type FilterFunc func(*Service) bool

// FilterByInstance returns a filter that matches the given instance name.
func FilterByInstance(instance string) FilterFunc {
	return func(svc *Service) bool {
		return svc.InstanceName == instance
	}
}

// FilterTLS returns a filter that matches services advertising TLS.
func FilterTLS() FilterFunc {
	return func(svc *Service) bool {
		return svc.TLS
	}
}

// FilterBrowseResults filters a channel of services.
func FilterBrowseResults(in <-chan *Service, filter FilterFunc) <-chan *Service {
	out := make(chan *Service)
	go func() {
		defer close(out)
		for svc := range in {
			if filter(svc) {
				out <- svc
			}
		}
	}()
	return out
}

// ServiceEntry is a raw mDNS service entry. It decouples the conversion
// to Service from the mDNS library.
type ServiceEntry struct {
	Instance string
	Service  string
	Domain   string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToService converts a ServiceEntry to Service.
func (e *ServiceEntry) ToService() (*Service, error) {
	if e.Instance == "" {
		return nil, fmt.Errorf("%w: instance", ErrMissingRequired)
	}
	if e.Port == 0 {
		return nil, fmt.Errorf("%w: port", ErrMissingRequired)
	}
	if e.Host == "" && len(e.Addrs) == 0 {
		return nil, fmt.Errorf("%w: host or address", ErrMissingRequired)
	}

	txt := StringsToTXTRecords(e.Text)
	useTLS, err := decodeTLS(txt)
	if err != nil {
		return nil, err
	}

	return &Service{
		InstanceName: e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    append([]string(nil), e.Addrs...),
		TLS:          useTLS,
		ServerName:   txt[TXTKeyServerName],
		TXT:          txt,
	}, nil
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses removes the given addresses from the list.
func removeAddresses(addresses, removed []string) []string {
	toRemove := make(map[string]bool, len(removed))
	for _, addr := range removed {
		toRemove[addr] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}

package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Discovery constants.
const (
	// Domain is the mDNS domain.
	Domain = "local"

	// BrowseTimeout is the default timeout for lookups.
	BrowseTimeout = 10 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// TXT record key constants.
const (
	TXTKeyTLS        = "tls" // "1" when the service expects TLS
	TXTKeyServerName = "sni" // Server name for verification (optional)
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrInvalidServiceType  = errors.New("invalid service type")
	ErrNotFound            = errors.New("service not found")
)

// Service is a resolved DNS-SD service instance.
type Service struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	// TLS is true when the service advertises tls=1.
	TLS bool

	// ServerName is the advertised SNI, or empty.
	ServerName string

	// TXT holds every TXT record of the service.
	TXT TXTRecordMap
}

// Address returns a dialable host:port. IPv4 addresses are preferred,
// then IPv6, then the advertised host name.
func (s *Service) Address() string {
	var v4, v6 string
	for _, a := range s.Addresses {
		ip := net.ParseIP(a)
		switch {
		case ip == nil:
		case ip.To4() != nil:
			if v4 == "" {
				v4 = a
			}
		case v6 == "":
			v6 = a
		}
	}

	host := trimDot(s.Host)
	if v4 != "" {
		host = v4
	} else if v6 != "" {
		host = v6
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}

// VerifyName returns the name to verify the server certificate against.
func (s *Service) VerifyName() string {
	if s.ServerName != "" {
		return s.ServerName
	}
	return trimDot(s.Host)
}

func trimDot(name string) string {
	if n := len(name); n > 0 && name[n-1] == '.' {
		return name[:n-1]
	}
	return name
}

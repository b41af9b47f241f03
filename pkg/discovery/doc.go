// Package discovery finds TLS services on the local network using
// mDNS/DNS-SD.
//
// A service is identified by its DNS-SD type (for example
// "_redis._tcp") and instance name. Addresses reported on several
// interfaces are merged into one Service.
//
// # TXT Records
//
// Two optional keys describe how to reach the service:
//   - tls: "1" when the service expects TLS, "0" when it does not
//   - sni: server name to present and verify, if it differs from the host
package discovery

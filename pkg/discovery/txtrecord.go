package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value" strings,
// sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
// Keys are case-insensitive and stored in lower case.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[strings.ToLower(parts[0])] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[strings.ToLower(parts[0])] = ""
		}
	}
	return txt
}

// decodeTLS parses the tls key. A missing key means false; a bare key
// means true.
func decodeTLS(txt TXTRecordMap) (bool, error) {
	v, ok := txt[TXTKeyTLS]
	if !ok {
		return false, nil
	}
	switch strings.ToLower(v) {
	case "", "1", "true", "yes":
		return true, nil
	case "0", "false", "no":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyTLS, v)
	}
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

// ValidateServiceType checks a DNS-SD service type such as "_redis._tcp".
func ValidateServiceType(serviceType string) error {
	parts := strings.Split(serviceType, ".")
	if len(parts) != 2 {
		return fmt.Errorf("%w: %q", ErrInvalidServiceType, serviceType)
	}
	if len(parts[0]) < 2 || parts[0][0] != '_' {
		return fmt.Errorf("%w: %q", ErrInvalidServiceType, serviceType)
	}
	if parts[1] != "_tcp" && parts[1] != "_udp" {
		return fmt.Errorf("%w: %q", ErrInvalidServiceType, serviceType)
	}
	return nil
}

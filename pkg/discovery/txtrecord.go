package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap holds TXT key/value pairs.
type TXTRecordMap map[string]string

// ValidateInstanceName checks that name fits a single DNS label.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidInstanceName)
	}
	if len(name) > MaxInstanceNameLen {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidInstanceName, len(name), MaxInstanceNameLen)
	}
	if strings.ContainsAny(name, ".\x00") {
		return fmt.Errorf("%w: %q contains a dot or NUL", ErrInvalidInstanceName, name)
	}
	return nil
}

// EncodeDeviceTXT builds TXT records for info.
func EncodeDeviceTXT(info *DeviceInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyVersion: info.Version,
		TXTKeyMode:    info.Mode,
	}
	path := info.Path
	if path == "" {
		path = "/"
	}
	txt[TXTKeyPath] = path
	if info.BootID != "" {
		txt[TXTKeyBootID] = info.BootID
	}
	return txt
}

// DecodeDeviceTXT parses TXT records. The mode key is required.
func DecodeDeviceTXT(txt TXTRecordMap) (*DeviceInfo, error) {
	mode, ok := txt[TXTKeyMode]
	if !ok || mode == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyMode)
	}
	info := &DeviceInfo{
		Version: txt[TXTKeyVersion],
		Mode:    mode,
		Path:    txt[TXTKeyPath],
		BootID:  txt[TXTKeyBootID],
	}
	if info.Path == "" {
		info.Path = "/"
	}
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings. A bare key maps to "".
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if found {
			txt[k] = v
		} else if k != "" {
			txt[k] = ""
		}
	}
	return txt
}

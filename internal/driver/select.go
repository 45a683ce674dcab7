package driver

import "strings"

// IsVirtualizationName reports whether name has the composite
// "label:vmid@node" shape that identifies a Proxmox LXC backend.
// Anything else routes to the container runtime driver.
func IsVirtualizationName(name string) bool {
	colon := strings.IndexByte(name, ':')
	at := strings.IndexByte(name, '@')
	return colon >= 0 && at > colon+1 && at < len(name)-1
}

// ParseVirtualizationName splits a composite name into its label,
// vmid and node parts. Callers must first confirm the name with
// IsVirtualizationName.
func ParseVirtualizationName(name string) (label, vmid, node string, ok bool) {
	colon := strings.IndexByte(name, ':')
	at := strings.IndexByte(name, '@')
	if colon < 0 || at <= colon+1 || at >= len(name)-1 {
		return "", "", "", false
	}
	return name[:colon], name[colon+1 : at], name[at+1:], true
}

// Registry picks the right Driver for a backend name.
type Registry struct {
	Runtime       Driver
	Virtualization Driver
}

// For returns the driver that owns name. When the virtualization
// driver is disabled (nil) but the name has that shape, For returns
// nil; callers check for a nil driver and treat it like an
// unreachable one.
func (r Registry) For(name string) Driver {
	if IsVirtualizationName(name) {
		return r.Virtualization
	}
	return r.Runtime
}

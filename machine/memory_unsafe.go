package machine

import "unsafe"

// asPtr32/asPtr64 reinterpret a guest-memory byte slice as a pointer to a
// native-width integer for the atomic aligned accesses in Read32/Write32
// and Read64/Write64. Callers have already checked natural alignment of
// the guest address; host byte order matches the little-endian guest
// layout on every little-endian host, and on a big-endian host the raw
// load is a plain byte-swap away from the guest's little-endian encoding
// — swapping is out of scope for this core's target hosts, matching the
// teacher's assumption throughout that the host is little-endian.
func asPtr32(b []byte) unsafe.Pointer { return unsafe.Pointer(&b[0]) }
func asPtr64(b []byte) unsafe.Pointer { return unsafe.Pointer(&b[0]) }

// Package persistence provides the fixed-layout non-volatile record used by
// the provisioning subsystem.
//
// The record lives in a raw byte region reached through a Driver. Fields sit at
// fixed offsets:
//
//	offset  width  field
//	0       2      marker ("CM")
//	2       32     network id (NUL padded)
//	34      64     network secret (NUL padded)
//	98      n      settings blob (owned by the parameter registry)
//
// Every path that changes credentials or settings rewrites the marker last,
// and nothing is durable until Commit. When the marker does not match, reads
// return defaults regardless of the raw bytes.
package persistence

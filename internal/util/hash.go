// Package util contains internal helpers (key hashing, stripes, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Hasher maps a key to a 64-bit hash.
type Hasher[K comparable] func(K) uint64

// HashKey hashes common key types. Strings and byte arrays go through
// xxhash; integer and float keys are hashed from their 8 little-endian
// bytes with FNV-1a. Unsupported key types panic: convert the key to a
// string or supply a Hasher.
func HashKey[K comparable](k K) uint64 {
	switch v := any(k).(type) {
	case string:
		return xxhash.Sum64String(v)
	case [16]byte:
		return xxhash.Sum64(v[:])
	case [32]byte:
		return xxhash.Sum64(v[:])
	case [64]byte:
		return xxhash.Sum64(v[:])
	case bool:
		if v {
			return fnvUint64(1)
		}
		return fnvUint64(0)
	case int:
		return fnvUint64(uint64(v))
	case int8:
		return fnvUint64(uint64(uint8(v)))
	case int16:
		return fnvUint64(uint64(uint16(v)))
	case int32:
		return fnvUint64(uint64(uint32(v)))
	case int64:
		return fnvUint64(uint64(v))
	case uint:
		return fnvUint64(uint64(v))
	case uint8:
		return fnvUint64(uint64(v))
	case uint16:
		return fnvUint64(uint64(v))
	case uint32:
		return fnvUint64(uint64(v))
	case uint64:
		return fnvUint64(v)
	case uintptr:
		return fnvUint64(uint64(v))
	case float32:
		return fnvUint64(uint64(math.Float32bits(v)))
	case float64:
		return fnvUint64(math.Float64bits(v))
	case fmt.Stringer:
		return xxhash.Sum64String(v.String())
	default:
		panic(fmt.Sprintf("util.HashKey: unsupported key type %T; convert key to string or provide a Hasher", k))
	}
}

// HashBytes hashes raw bytes with xxhash.
func HashBytes(b []byte) uint64 { return xxhash.Sum64(b) }

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

func fnvUint64(u uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], u)
	h := uint64(fnvOffset64)
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}

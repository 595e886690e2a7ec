package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is the padding unit. 64 bytes covers common amd64/arm64
// parts; std keeps its own constant unexported.
const CacheLineSize = 64

// CacheLinePad separates groups of hot fields onto distinct cache lines.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// PaddedCounter is an atomic int64 occupying a full cache line, for
// counters bumped from many goroutines.
type PaddedCounter struct {
	atomic.Int64
	_ [CacheLineSize - 8]byte
}

// PaddedUint64 is the unsigned counterpart of PaddedCounter.
type PaddedUint64 struct {
	atomic.Uint64
	_ [CacheLineSize - 8]byte
}

// Both types must be exactly one cache line.
var (
	_ [CacheLineSize - int(unsafe.Sizeof(PaddedCounter{}))]byte
	_ [int(unsafe.Sizeof(PaddedCounter{})) - CacheLineSize]byte
	_ [CacheLineSize - int(unsafe.Sizeof(PaddedUint64{}))]byte
)

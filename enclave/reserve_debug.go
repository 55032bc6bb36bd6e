//go:build debugconfig

package enclave

import (
	"os"

	"github.com/ruteri/tee-enclave-node/interfaces"
)

// DebugReserveEnabled reports whether this build reserves debug memory on create.
const DebugReserveEnabled = true

// reserveDebugMemory pins cfg.Debug.MemoryReserveStartup bytes until Close.
// Running out of memory here terminates the process.
func (e *Enclave) reserveDebugMemory(cfg *interfaces.NodeConfig) {
	size := cfg.Debug.MemoryReserveStartup
	if size == 0 {
		return
	}

	block := make([]byte, size)
	// Touch every page so the reservation is backed, not just mapped.
	pageSize := os.Getpagesize()
	for i := 0; i < len(block); i += pageSize {
		block[i] = 1
	}

	e.reserved = block
	e.log.Debug("Reserved debug memory", "size", size)
}

func (e *Enclave) releaseDebugMemory() {
	if e.reserved != nil {
		e.log.Debug("Released debug memory", "size", len(e.reserved))
	}
	e.reserved = nil
}

//go:build !debugconfig

package enclave

import "github.com/ruteri/tee-enclave-node/interfaces"

// DebugReserveEnabled reports whether this build reserves debug memory on create.
const DebugReserveEnabled = false

func (e *Enclave) reserveDebugMemory(*interfaces.NodeConfig) {}

func (e *Enclave) releaseDebugMemory() {}

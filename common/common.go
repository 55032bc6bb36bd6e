// Package common holds process-wide build information and logging setup.
package common

var (
	// PackageName is used as the Prometheus namespace and default log service tag.
	PackageName = "enclave_node"

	// Version is overridden at build time with -ldflags "-X .../common.Version=..."
	Version = "dev"
)

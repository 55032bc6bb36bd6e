/*
Package httpserver implements the host-side admin HTTP API of an enclave node.

It publishes the node certificate and attestation quote returned by the
enclave on create, together with the host driver status, so operators and
clients can verify which node they talk to.

# API Endpoints

  - GET /api/public/node - Node certificate (PEM), quote and report data (hex)
  - GET /api/public/status - Host driver status
  - GET /livez - Liveness check
  - GET /readyz - Readiness check, fails until the node is created
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready

Prometheus metrics are served on a separate listener (see package metrics).
pprof is mounted under /debug when enabled.

# Example Usage

	cfg := &httpserver.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:8080",
		MetricsAddr:              "127.0.0.1:8090",
		Log:                      logger,
		DrainDuration:            45 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}

	handler := httpserver.NewHandler(driver, nodeCfg.Attestation, logger)
	server, err := httpserver.New(cfg, handler, metricsSrv)
	if err != nil {
		return err
	}

	server.RunInBackground()
	defer server.Shutdown()
*/
package httpserver

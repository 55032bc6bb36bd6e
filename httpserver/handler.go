package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/tee-enclave-node/cryptoutils"
	"github.com/ruteri/tee-enclave-node/host"
	"github.com/ruteri/tee-enclave-node/interfaces"
)

// NodeSource provides what the enclave published about its node.
// *host.Host implements it.
type NodeSource interface {
	Identity() (interfaces.NodeIdentity, bool)
	Status() host.Status
}

// NodeInfo is the response of GET /api/public/node.
type NodeInfo struct {
	// Attestation is the attestation type the node was configured with.
	Attestation string `json:"attestation"`

	// Certificate is the PEM encoded self-signed node certificate.
	Certificate string `json:"certificate"`

	// Quote is the raw attestation quote.
	Quote hexutil.Bytes `json:"quote"`

	// ReportData is what the quote is expected to carry for Certificate.
	ReportData hexutil.Bytes `json:"report_data"`
}

// Handler serves node information published by the enclave.
type Handler struct {
	source      NodeSource
	attestation string
	log         *slog.Logger
}

// NewHandler creates a handler for source. attestation is reported to
// clients so they know how to verify the quote.
func NewHandler(source NodeSource, attestation string, log *slog.Logger) *Handler {
	return &Handler{
		source:      source,
		attestation: attestation,
		log:         log,
	}
}

// HandleNodeInfo returns the node certificate and quote.
//
// URL format: GET /api/public/node
//
// Responds 503 until the node has been created.
func (h *Handler) HandleNodeInfo(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.source.Identity()
	if !ok {
		http.Error(w, "Node not created", http.StatusServiceUnavailable)
		return
	}

	der, err := cryptoutils.NodeCert(identity.Cert).DER()
	if err != nil {
		h.log.Error("Published node certificate is not PEM", "err", err)
		http.Error(w, "Invalid node certificate", http.StatusInternalServerError)
		return
	}
	reportData := cryptoutils.CertReportData(der)

	writeJSON(w, h.log, &NodeInfo{
		Attestation: h.attestation,
		Certificate: string(identity.Cert),
		Quote:       identity.Quote,
		ReportData:  reportData[:],
	})
}

// HandleStatus returns the host driver status.
//
// URL format: GET /api/public/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := h.source.Status()
	writeJSON(w, h.log, &status)
}

// Ready reports whether the node has been created.
func (h *Handler) Ready() bool {
	_, ok := h.source.Identity()
	return ok
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response", "err", err)
	}
}

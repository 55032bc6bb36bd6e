package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/ruteri/tee-enclave-node/cmd/flags"
	"github.com/ruteri/tee-enclave-node/cryptoutils"
	"github.com/ruteri/tee-enclave-node/httpserver"
	"github.com/urfave/cli/v2"
)

var flagNodeAddr = &cli.StringFlag{
	Name:  "node-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "admin API address of the node to verify",
}

var flagSubject = &cli.StringFlag{
	Name:  "subject",
	Usage: "expected certificate common name, not checked if empty",
}

var flagAllowDummy = &cli.BoolFlag{
	Name:  "allow-dummy",
	Value: false,
	Usage: "accept nodes using dummy attestation",
}

type verifyResult struct {
	Subject      string         `json:"subject"`
	NotBefore    time.Time      `json:"not_before"`
	NotAfter     time.Time      `json:"not_after"`
	Attestation  string         `json:"attestation"`
	Measurements map[int]string `json:"measurements,omitempty"`
}

func main() {
	app := &cli.App{
		Name:  "verify-node",
		Usage: "Check that a node's attestation quote binds its published certificate",
		Flags: append([]cli.Flag{
			flagNodeAddr,
			flagSubject,
			flagAllowDummy,
		}, flags.LogFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			info, err := fetchNodeInfo(cCtx.String(flagNodeAddr.Name))
			if err != nil {
				logger.Error("Failed to fetch node info", "err", err)
				return err
			}

			cert := cryptoutils.NodeCert(info.Certificate)
			x509Cert, err := cert.GetX509Cert()
			if err != nil {
				return fmt.Errorf("invalid node certificate: %w", err)
			}
			if subject := cCtx.String(flagSubject.Name); subject != "" && x509Cert.Subject.CommonName != subject {
				return fmt.Errorf("certificate subject %q, expected %q", x509Cert.Subject.CommonName, subject)
			}

			reportData := cryptoutils.CertReportData(x509Cert.Raw)
			result := verifyResult{
				Subject:     x509Cert.Subject.CommonName,
				NotBefore:   x509Cert.NotBefore,
				NotAfter:    x509Cert.NotAfter,
				Attestation: info.Attestation,
			}

			attestationType, err := cryptoutils.AttestationTypeFromString(info.Attestation)
			if err != nil {
				return fmt.Errorf("attestation %q: %w", info.Attestation, err)
			}

			switch attestationType.StringID {
			case cryptoutils.DummyAttestation.StringID:
				if !cCtx.Bool(flagAllowDummy.Name) {
					return errors.New("node uses dummy attestation, pass --allow-dummy to accept it")
				}
				if err := cryptoutils.VerifyDummyAttestation(reportData, info.Quote); err != nil {
					return err
				}
			default:
				measurements, err := cryptoutils.VerifyDCAPAttestation(reportData, info.Quote)
				if err != nil {
					return err
				}
				result.Measurements = measurements
			}

			logger.Info("Node verified", "subject", result.Subject, "attestation", result.Attestation)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(&result)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func fetchNodeInfo(addr string) (*httpserver.NodeInfo, error) {
	client := &http.Client{Timeout: 30 * time.Second}

	resp, err := client.Get(addr + "/api/public/node")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("node returned status %d", resp.StatusCode)
	}

	var info httpserver.NodeInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding node info: %w", err)
	}
	return &info, nil
}

// Package quarantine holds accepted bytes in isolation until an external
// threat scanner renders a verdict. The scanning capability is optional;
// behavior when it is absent or degraded is a policy decision, not a guess.
package quarantine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ScanVerdict is the closed set of scanner outcomes.
type ScanVerdict string

const (
	VerdictClean    ScanVerdict = "clean"
	VerdictInfected ScanVerdict = "infected"
	VerdictUnknown  ScanVerdict = "unknown"
)

// Scanner is an external threat-scanning capability.
type Scanner interface {
	Scan(ctx context.Context, data []byte) (ScanVerdict, error)
}

// Disabled is the absent-capability scanner. Every payload passes through
// with a clean verdict; the gate never degrades.
type Disabled struct{}

// Scan reports clean unconditionally.
func (Disabled) Scan(ctx context.Context, data []byte) (ScanVerdict, error) {
	if err := ctx.Err(); err != nil {
		return VerdictUnknown, err
	}
	return VerdictClean, nil
}

// HTTPScanner submits payloads to an external scan service over HTTP and
// parses its JSON verdict.
type HTTPScanner struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPScanner constructs a scanner for the given endpoint.
func NewHTTPScanner(endpoint string) *HTTPScanner {
	return &HTTPScanner{
		Endpoint: strings.TrimSpace(endpoint),
		Client:   &http.Client{},
	}
}

type scanResponse struct {
	Verdict string `json:"verdict"`
	Threat  string `json:"threat,omitempty"`
}

// Scan posts the payload and blocks until the service answers or ctx expires.
func (s *HTTPScanner) Scan(ctx context.Context, data []byte) (ScanVerdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(data))
	if err != nil {
		return VerdictUnknown, fmt.Errorf("scan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return VerdictUnknown, fmt.Errorf("scan call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return VerdictUnknown, fmt.Errorf("scan service status %d", resp.StatusCode)
	}

	var parsed scanResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return VerdictUnknown, fmt.Errorf("scan response decode: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(parsed.Verdict)) {
	case "clean", "ok":
		return VerdictClean, nil
	case "infected", "malicious", "threat":
		return VerdictInfected, nil
	default:
		return VerdictUnknown, nil
	}
}

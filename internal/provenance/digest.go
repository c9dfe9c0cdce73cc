package provenance

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"golang.org/x/crypto/blake2b"

	"github.com/idlab-discover/anomalyfusion-cli/internal/grid"
)

// DigestAlgorithm names the digest in records and BOM hashes.
const DigestAlgorithm = "blake2b-256"

// Digest returns the hex BLAKE2b-256 of the grid's JSON encoding. Map keys
// are sorted by encoding/json, so equal grids always hash the same.
func Digest(g *grid.Grid) (string, error) {
	if g == nil {
		return "", fmt.Errorf("digest: nil grid")
	}
	b, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Verify reports whether digest matches g.
func Verify(g *grid.Grid, digest string) (bool, error) {
	got, err := Digest(g)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(got, strings.TrimSpace(digest)), nil
}

// Record is the integrity record of an exported grid: enough to check a
// printed or field copy against the archived file.
type Record struct {
	RunID          string    `json:"runId"`
	CreatedAt      time.Time `json:"createdAt"`
	Algorithm      string    `json:"algorithm"`
	Digest         string    `json:"digest"`
	MaxProbability float64   `json:"maxProbability"`
	Anomalies      int       `json:"anomalies"`
	Threshold      float64   `json:"threshold"`
}

// NewRecord digests g and summarizes it at threshold.
func NewRecord(g *grid.Grid, threshold float64) (Record, error) {
	d, err := Digest(g)
	if err != nil {
		return Record{}, err
	}
	s := grid.Summarize(g, threshold)
	return Record{
		RunID:          g.RunID,
		CreatedAt:      g.CreatedAt,
		Algorithm:      DigestAlgorithm,
		Digest:         d,
		MaxProbability: s.MaxProbability,
		Anomalies:      s.AboveThreshold,
		Threshold:      threshold,
	}, nil
}

// String is the compact single-line form encoded into QR codes.
func (r Record) String() string {
	return fmt.Sprintf("anomalyfusion:run=%s;%s=%s;max=%.4f;n=%d;t=%.2f;at=%s",
		r.RunID, r.Algorithm, r.Digest, r.MaxProbability, r.Anomalies, r.Threshold,
		r.CreatedAt.UTC().Format(time.RFC3339))
}

// DefaultQRSize is the side of the QR PNG in pixels.
const DefaultQRSize = 256

// WriteQR writes the record as a QR code PNG.
func WriteQR(r Record, path string, size int) error {
	if size <= 0 {
		size = DefaultQRSize
	}
	if err := qrcode.WriteFile(r.String(), qrcode.Medium, size, path); err != nil {
		return fmt.Errorf("write qr %s: %w", path, err)
	}
	logf(r.RunID, "qr written to %s", path)
	return nil
}

// QRPNG returns the record encoded as a QR code PNG.
func QRPNG(r Record, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	return qrcode.Encode(r.String(), qrcode.Medium, size)
}

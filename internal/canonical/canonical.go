// Package canonical produces the deterministic byte encoding of a contract's
// content fields, and derives the verification hash record from it. Two calls
// over logically identical content must yield byte-identical output, across
// process restarts: serialization goes through a fixed-order struct with all
// values pre-rendered as strings, so no map ordering or float formatting can
// leak into the result.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"agroforward/internal/models"
)

// snapshot is the canonical field set. Everything here is immutable once the
// contract leaves CREATED; artifact state, hedge extras and update timestamps
// are deliberately absent.
type snapshot struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	Crop           string `json:"crop"`
	Quantity       string `json:"quantity"`
	Unit           string `json:"unit"`
	StrikePrice    string `json:"strike_price"`
	DeliveryWindow string `json:"delivery_window"`
	FarmerID       string `json:"farmer_id"`
	BuyerID        string `json:"buyer_id"`
	CreatedAt      string `json:"created_at"`
}

// Marshal returns the canonical bytes for a contract.
func Marshal(c *models.Contract) ([]byte, error) {
	snap := snapshot{
		ID:             c.ID,
		Kind:           c.Kind,
		Crop:           c.Crop,
		Quantity:       NormalizeDecimal(c.Quantity),
		Unit:           c.Unit,
		StrikePrice:    NormalizeDecimal(c.StrikePrice),
		DeliveryWindow: c.DeliveryWindow,
		FarmerID:       c.FarmerID,
		BuyerID:        c.BuyerID,
		CreatedAt:      c.CreatedAt.UTC().Format(time.RFC3339),
	}
	return json.Marshal(snap)
}

// NormalizeDecimal renders a decimal without trailing fraction zeros, so that
// "50", "50.0" and "50.00" canonicalize identically.
func NormalizeDecimal(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// Hash returns the lowercase hex SHA-256 digest of the canonical bytes.
func Hash(canonicalBytes []byte) string {
	sum := sha256.Sum256(canonicalBytes)
	return hex.EncodeToString(sum[:])
}

// TxHash derives the pseudo transaction id from a document hash.
func TxHash(documentHash string) string {
	h := documentHash
	if len(h) > 64 {
		h = h[:64]
	}
	return "0x" + h
}

// ExplorerURL derives the explorer link for a pseudo transaction id.
func ExplorerURL(explorerBase, txHash string) string {
	return strings.TrimRight(explorerBase, "/") + "/tx/" + txHash
}

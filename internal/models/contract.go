package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contract kinds. A FARMER_OFFER is created by a farmer and accepted by a
// buyer; a BUYER_DEMAND is the mirror image.
const (
	KindFarmerOffer = "FARMER_OFFER"
	KindBuyerDemand = "BUYER_DEMAND"
)

// Contract statuses. Transitions only move forward out of CREATED; the three
// other states are terminal.
const (
	StatusCreated   = "CREATED"
	StatusAccepted  = "ACCEPTED"
	StatusCancelled = "CANCELLED"
	StatusExpired   = "EXPIRED"
)

// Artifact publication states for the IPFS copy of the canonical document.
const (
	ArtifactNone      = ""
	ArtifactPending   = "PENDING"
	ArtifactPublished = "PUBLISHED"
	ArtifactFailed    = "FAILED"
)

type Contract struct {
	ID   string `gorm:"type:varchar(36);primaryKey"`
	Kind string `gorm:"type:varchar(20);not null;index"`

	Crop           string          `gorm:"type:varchar(100);not null"`
	Quantity       decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Unit           string          `gorm:"type:varchar(20);not null"`
	StrikePrice    decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	DeliveryWindow string          `gorm:"type:varchar(50);not null"`

	// F&O-style extras; informational, never part of the hashed content.
	HedgeType          string           `gorm:"type:varchar(20);not null;default:'fixed_price'"`
	PremiumPerUnit     *decimal.Decimal `gorm:"type:numeric(20,4)"`
	CurrentMarketPrice *decimal.Decimal `gorm:"type:numeric(20,4)"`

	Status string `gorm:"type:varchar(20);not null;default:'CREATED';index"`

	// Exactly one of the two is set at creation (which one depends on Kind);
	// the other is filled once, atomically with CREATED -> ACCEPTED.
	FarmerID string `gorm:"type:varchar(36);index"`
	BuyerID  string `gorm:"type:varchar(36);index"`

	// Verification record, written only by the anchor service and the
	// artifact publisher.
	DocumentHash      string `gorm:"type:varchar(64)"`
	AnchorTxHash      string `gorm:"type:varchar(80)"`
	AnchorExplorerURL string `gorm:"type:varchar(200)"`
	ArtifactCID       string `gorm:"type:varchar(100)"`
	ArtifactURL       string `gorm:"type:varchar(200)"`
	ArtifactStatus    string `gorm:"type:varchar(20);index"`
	ArtifactError     string `gorm:"type:text"`
	PublishAttempts   int    `gorm:"not null;default:0"`

	ExpiresAt  *time.Time `gorm:"type:timestamptz;index"`
	AcceptedAt *time.Time `gorm:"type:timestamptz"`
	AnchoredAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Contract) TableName() string {
	return "contracts"
}

// CreatorID is the party that opened the contract.
func (c *Contract) CreatorID() string {
	if c.Kind == KindBuyerDemand {
		return c.BuyerID
	}
	return c.FarmerID
}

// AcceptorID is the party bound by acceptance, empty while CREATED.
func (c *Contract) AcceptorID() string {
	if c.Kind == KindBuyerDemand {
		return c.FarmerID
	}
	return c.BuyerID
}

package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agroforward/internal/models"
	"agroforward/internal/repository"
)

// Enqueuer hands a contract id to the artifact pipeline without blocking.
type Enqueuer interface {
	Enqueue(contractID string)
}

// PriceQuoter supplies a reference market price for a crop. Best effort; the
// matching flow works without it.
type PriceQuoter interface {
	Quote(ctx context.Context, crop string) (decimal.Decimal, error)
}

var deliveryWindowRe = regexp.MustCompile(`^[1-9][0-9]* (Days|Months)$`)

type CreateContractInput struct {
	Kind           string
	Crop           string
	Quantity       decimal.Decimal
	Unit           string
	StrikePrice    decimal.Decimal
	DeliveryWindow string
	PartyID        string
	HedgeType      string
	PremiumPerUnit *decimal.Decimal
	ExpiryMonths   int
}

// MatchingService owns contract creation and the accept/cancel transitions.
// Acceptance is resolved by a conditional write in the store; no in-process
// lock is involved, so multiple instances can run this service concurrently.
type MatchingService struct {
	Repo      repository.Repository
	Notifier  *NotifyService
	Publisher Enqueuer
	Prices    PriceQuoter
	Logger    *zap.Logger
}

func (s *MatchingService) Create(ctx context.Context, in CreateContractInput) (*models.Contract, error) {
	if s == nil || s.Repo == nil {
		return nil, fmt.Errorf("%w: matching service not configured", ErrDependency)
	}
	kind := strings.TrimSpace(in.Kind)
	if kind == "" {
		kind = models.KindFarmerOffer
	}
	if kind != models.KindFarmerOffer && kind != models.KindBuyerDemand {
		return nil, fmt.Errorf("%w: unknown contract kind %q", ErrValidation, in.Kind)
	}
	crop := strings.TrimSpace(in.Crop)
	unit := strings.TrimSpace(in.Unit)
	partyID := strings.TrimSpace(in.PartyID)
	switch {
	case crop == "":
		return nil, fmt.Errorf("%w: crop is required", ErrValidation)
	case unit == "":
		return nil, fmt.Errorf("%w: unit is required", ErrValidation)
	case partyID == "":
		return nil, fmt.Errorf("%w: party id is required", ErrValidation)
	case !in.Quantity.IsPositive():
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	case !in.StrikePrice.IsPositive():
		return nil, fmt.Errorf("%w: strike price must be positive", ErrValidation)
	case !deliveryWindowRe.MatchString(strings.TrimSpace(in.DeliveryWindow)):
		return nil, fmt.Errorf("%w: unrecognized delivery window %q", ErrValidation, in.DeliveryWindow)
	}

	now := time.Now().UTC()
	item := &models.Contract{
		ID:             uuid.NewString(),
		Kind:           kind,
		Crop:           crop,
		Quantity:       in.Quantity,
		Unit:           unit,
		StrikePrice:    in.StrikePrice,
		DeliveryWindow: strings.TrimSpace(in.DeliveryWindow),
		HedgeType:      defaultHedgeType(in.HedgeType),
		PremiumPerUnit: in.PremiumPerUnit,
		Status:         models.StatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if kind == models.KindBuyerDemand {
		item.BuyerID = partyID
	} else {
		item.FarmerID = partyID
	}
	if in.ExpiryMonths > 0 {
		exp := now.AddDate(0, in.ExpiryMonths, 0)
		item.ExpiresAt = &exp
	}

	if s.Prices != nil {
		if quote, err := s.Prices.Quote(ctx, crop); err == nil && quote.IsPositive() {
			item.CurrentMarketPrice = &quote
		} else if err != nil && s.Logger != nil {
			s.Logger.Debug("price feed unavailable, using strike price", zap.Error(err))
		}
	}

	if err := s.Repo.InsertContract(ctx, item); err != nil {
		return nil, fmt.Errorf("%w: insert contract: %v", ErrDependency, err)
	}

	if s.Notifier != nil {
		if err := s.Notifier.Send(ctx, partyID, "Contract Created",
			fmt.Sprintf("Your %s contract for %s %s has been created.", crop, in.Quantity.String(), unit),
			map[string]any{"contractId": item.ID}); err != nil && s.Logger != nil {
			s.Logger.Warn("create notification failed", zap.String("contract_id", item.ID), zap.Error(err))
		}
	}

	return item, nil
}

func defaultHedgeType(raw string) string {
	t := strings.TrimSpace(raw)
	if t == "" {
		return "fixed_price"
	}
	return t
}

// Accept binds acceptorID to the contract. Of all concurrent callers exactly
// one succeeds; every loser gets ErrConflict after a re-read of the persisted
// state. The artifact pipeline and both notifications run after the committed
// transition and cannot roll it back.
func (s *MatchingService) Accept(ctx context.Context, contractID, acceptorID string) (*models.Contract, error) {
	if s == nil || s.Repo == nil {
		return nil, fmt.Errorf("%w: matching service not configured", ErrDependency)
	}
	contractID = strings.TrimSpace(contractID)
	acceptorID = strings.TrimSpace(acceptorID)
	if contractID == "" || acceptorID == "" {
		return nil, fmt.Errorf("%w: contract id and party id are required", ErrValidation)
	}

	current, err := s.Repo.GetContractByID(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("%w: load contract: %v", ErrDependency, err)
	}
	if current == nil {
		return nil, fmt.Errorf("%w: contract %s", ErrNotFound, contractID)
	}
	if current.CreatorID() == acceptorID {
		return nil, fmt.Errorf("%w: cannot accept own contract", ErrConflict)
	}

	acceptedAt := time.Now().UTC()
	rows, err := s.Repo.AcceptContract(ctx, contractID, current.Kind, acceptorID, acceptedAt)
	if err != nil {
		// Ambiguous failure (e.g. timeout mid-write): re-read rather than
		// assume the write did not apply.
		if applied, rerr := s.acceptApplied(ctx, contractID, acceptorID); rerr == nil && applied {
			rows = 1
		} else {
			return nil, fmt.Errorf("%w: accept contract: %v", ErrDependency, err)
		}
	}
	if rows == 0 {
		latest, err := s.Repo.GetContractByID(ctx, contractID)
		if err != nil {
			return nil, fmt.Errorf("%w: reload contract: %v", ErrDependency, err)
		}
		if latest == nil {
			return nil, fmt.Errorf("%w: contract %s", ErrNotFound, contractID)
		}
		return nil, fmt.Errorf("%w: contract is %s", ErrConflict, latest.Status)
	}

	accepted, err := s.Repo.GetContractByID(ctx, contractID)
	if err != nil || accepted == nil {
		return nil, fmt.Errorf("%w: reload accepted contract: %v", ErrDependency, err)
	}

	if s.Publisher != nil {
		s.Publisher.Enqueue(contractID)
	}
	s.notifyAccepted(ctx, accepted)

	return accepted, nil
}

func (s *MatchingService) acceptApplied(ctx context.Context, contractID, acceptorID string) (bool, error) {
	latest, err := s.Repo.GetContractByID(ctx, contractID)
	if err != nil || latest == nil {
		return false, err
	}
	return latest.Status == models.StatusAccepted && latest.AcceptorID() == acceptorID, nil
}

func (s *MatchingService) notifyAccepted(ctx context.Context, c *models.Contract) {
	if s.Notifier == nil {
		return
	}
	terms := fmt.Sprintf("%s %s of %s at %s/%s",
		c.Quantity.String(), c.Unit, c.Crop, c.StrikePrice.String(), c.Unit)

	creatorMsg := fmt.Sprintf("Your offer for %s was accepted.", terms)
	if c.Kind == models.KindBuyerDemand {
		creatorMsg = fmt.Sprintf("A farmer has accepted your demand for %s.", terms)
	}
	data := map[string]any{"contractId": c.ID, "farmerId": c.FarmerID, "buyerId": c.BuyerID}

	if err := s.Notifier.Send(ctx, c.CreatorID(), "Contract Accepted!", creatorMsg, data); err != nil && s.Logger != nil {
		s.Logger.Warn("creator notification failed", zap.String("contract_id", c.ID), zap.Error(err))
	}
	acceptorMsg := fmt.Sprintf("You accepted a contract for %s.", terms)
	if err := s.Notifier.Send(ctx, c.AcceptorID(), "Contract Accepted!", acceptorMsg, data); err != nil && s.Logger != nil {
		s.Logger.Warn("acceptor notification failed", zap.String("contract_id", c.ID), zap.Error(err))
	}
}

// Cancel moves a CREATED contract to CANCELLED. Only the creating party may
// cancel; failure semantics mirror Accept.
func (s *MatchingService) Cancel(ctx context.Context, contractID, requesterID string) (*models.Contract, error) {
	if s == nil || s.Repo == nil {
		return nil, fmt.Errorf("%w: matching service not configured", ErrDependency)
	}
	contractID = strings.TrimSpace(contractID)
	requesterID = strings.TrimSpace(requesterID)
	if contractID == "" || requesterID == "" {
		return nil, fmt.Errorf("%w: contract id and party id are required", ErrValidation)
	}

	current, err := s.Repo.GetContractByID(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("%w: load contract: %v", ErrDependency, err)
	}
	if current == nil {
		return nil, fmt.Errorf("%w: contract %s", ErrNotFound, contractID)
	}

	rows, err := s.Repo.CancelContract(ctx, contractID, current.Kind, requesterID)
	if err != nil {
		return nil, fmt.Errorf("%w: cancel contract: %v", ErrDependency, err)
	}
	if rows == 0 {
		latest, err := s.Repo.GetContractByID(ctx, contractID)
		if err != nil {
			return nil, fmt.Errorf("%w: reload contract: %v", ErrDependency, err)
		}
		if latest == nil {
			return nil, fmt.Errorf("%w: contract %s", ErrNotFound, contractID)
		}
		if latest.Status != models.StatusCreated {
			return nil, fmt.Errorf("%w: contract is %s", ErrConflict, latest.Status)
		}
		return nil, fmt.Errorf("%w: only the creating party can cancel", ErrConflict)
	}

	cancelled, err := s.Repo.GetContractByID(ctx, contractID)
	if err != nil || cancelled == nil {
		return nil, fmt.Errorf("%w: reload cancelled contract: %v", ErrDependency, err)
	}
	return cancelled, nil
}

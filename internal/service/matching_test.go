package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"agroforward/internal/models"
	"agroforward/internal/repository"
)

type stubEnqueuer struct {
	mu  sync.Mutex
	ids []string
}

func (e *stubEnqueuer) Enqueue(contractID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, contractID)
}

func validInput() CreateContractInput {
	return CreateContractInput{
		Kind:           models.KindFarmerOffer,
		Crop:           "Soybean",
		Quantity:       decimal.NewFromInt(50),
		Unit:           "Qtl",
		StrikePrice:    decimal.NewFromInt(4800),
		DeliveryWindow: "30 Days",
		PartyID:        "farmer-1",
	}
}

func seedContract(repo *stubRepo, kind string) *models.Contract {
	now := time.Now().UTC()
	c := &models.Contract{
		ID:             "c-1",
		Kind:           kind,
		Crop:           "Wheat",
		Quantity:       decimal.NewFromInt(100),
		Unit:           "Qtl",
		StrikePrice:    decimal.NewFromInt(2200),
		DeliveryWindow: "2 Months",
		Status:         models.StatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if kind == models.KindBuyerDemand {
		c.BuyerID = "buyer-1"
	} else {
		c.FarmerID = "farmer-1"
	}
	repo.put(c)
	return c
}

func TestCreateContract(t *testing.T) {
	repo := newStubRepo()
	svc := &MatchingService{Repo: repo}

	created, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated contract id")
	}
	if created.Status != models.StatusCreated {
		t.Fatalf("status = %s, want %s", created.Status, models.StatusCreated)
	}
	if created.FarmerID != "farmer-1" || created.BuyerID != "" {
		t.Fatalf("slots = (%q, %q), want farmer filled, buyer empty", created.FarmerID, created.BuyerID)
	}
	if created.HedgeType != "fixed_price" {
		t.Fatalf("hedge type = %q, want default fixed_price", created.HedgeType)
	}

	stored, err := repo.GetContractByID(context.Background(), created.ID)
	if err != nil || stored == nil {
		t.Fatalf("contract not persisted: %v", err)
	}
}

func TestCreateContractBuyerDemandFillsBuyerSlot(t *testing.T) {
	repo := newStubRepo()
	svc := &MatchingService{Repo: repo}

	in := validInput()
	in.Kind = models.KindBuyerDemand
	in.PartyID = "buyer-9"

	created, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.BuyerID != "buyer-9" || created.FarmerID != "" {
		t.Fatalf("slots = (%q, %q), want buyer filled, farmer empty", created.FarmerID, created.BuyerID)
	}
}

func TestCreateContractExpiry(t *testing.T) {
	repo := newStubRepo()
	svc := &MatchingService{Repo: repo}

	in := validInput()
	in.ExpiryMonths = 3

	created, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ExpiresAt == nil {
		t.Fatal("expected expires_at to be set")
	}
	if !created.ExpiresAt.After(created.CreatedAt) {
		t.Fatalf("expires_at %v not after created_at %v", created.ExpiresAt, created.CreatedAt)
	}
}

func TestCreateContractValidation(t *testing.T) {
	repo := newStubRepo()
	svc := &MatchingService{Repo: repo}

	cases := []struct {
		name   string
		mutate func(*CreateContractInput)
	}{
		{"unknown kind", func(in *CreateContractInput) { in.Kind = "OPTION" }},
		{"empty crop", func(in *CreateContractInput) { in.Crop = "  " }},
		{"empty unit", func(in *CreateContractInput) { in.Unit = "" }},
		{"empty party", func(in *CreateContractInput) { in.PartyID = "" }},
		{"zero quantity", func(in *CreateContractInput) { in.Quantity = decimal.Zero }},
		{"negative strike", func(in *CreateContractInput) { in.StrikePrice = decimal.NewFromInt(-1) }},
		{"bad window unit", func(in *CreateContractInput) { in.DeliveryWindow = "30 Weeks" }},
		{"zero window", func(in *CreateContractInput) { in.DeliveryWindow = "0 Days" }},
		{"bare window", func(in *CreateContractInput) { in.DeliveryWindow = "Days" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestAcceptContract(t *testing.T) {
	repo := newStubRepo()
	enq := &stubEnqueuer{}
	svc := &MatchingService{Repo: repo, Publisher: enq, Notifier: &NotifyService{Repo: repo}}
	seedContract(repo, models.KindFarmerOffer)

	accepted, err := svc.Accept(context.Background(), "c-1", "buyer-7")
	if err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}
	if accepted.Status != models.StatusAccepted {
		t.Fatalf("status = %s, want %s", accepted.Status, models.StatusAccepted)
	}
	if accepted.BuyerID != "buyer-7" {
		t.Fatalf("buyer slot = %q, want buyer-7", accepted.BuyerID)
	}
	if accepted.AcceptedAt == nil {
		t.Fatal("expected accepted_at to be set")
	}
	if accepted.ArtifactStatus != models.ArtifactPending {
		t.Fatalf("artifact status = %s, want %s", accepted.ArtifactStatus, models.ArtifactPending)
	}
	if len(enq.ids) != 1 || enq.ids[0] != "c-1" {
		t.Fatalf("publisher enqueued %v, want [c-1]", enq.ids)
	}
	notes, _ := repo.ListNotifications(context.Background(), repository.ListNotificationsParams{})
	if len(notes) != 2 {
		t.Fatalf("got %d notifications, want one per party", len(notes))
	}
}

func TestAcceptSingleWinner(t *testing.T) {
	repo := newStubRepo()
	svc := &MatchingService{Repo: repo}
	seedContract(repo, models.KindFarmerOffer)

	const acceptors = 16
	var wg sync.WaitGroup
	errs := make([]error, acceptors)
	for i := 0; i < acceptors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Accept(context.Background(), "c-1", fmt.Sprintf("buyer-%d", i))
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrConflict):
		default:
			t.Fatalf("acceptor %d got unexpected error: %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("got %d winners, want exactly 1", winners)
	}

	final, _ := repo.GetContractByID(context.Background(), "c-1")
	if final.Status != models.StatusAccepted {
		t.Fatalf("final status = %s, want %s", final.Status, models.StatusAccepted)
	}
	if final.BuyerID == "" {
		t.Fatal("winner slot is empty")
	}
}

func TestAcceptOwnContract(t *testing.T) {
	repo := newStubRepo()
	svc := &MatchingService{Repo: repo}
	seedContract(repo, models.KindFarmerOffer)

	if _, err := svc.Accept(context.Background(), "c-1", "farmer-1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

func TestAcceptMissingContract(t *testing.T) {
	repo := newStubRepo()
	svc := &MatchingService{Repo: repo}

	if _, err := svc.Accept(context.Background(), "nope", "buyer-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestAcceptTerminalStatus(t *testing.T) {
	for _, status := range []string{models.StatusCancelled, models.StatusExpired, models.StatusAccepted} {
		t.Run(status, func(t *testing.T) {
			repo := newStubRepo()
			svc := &MatchingService{Repo: repo}
			c := seedContract(repo, models.KindFarmerOffer)
			c.Status = status
			repo.put(c)

			_, err := svc.Accept(context.Background(), "c-1", "buyer-2")
			if !errors.Is(err, ErrConflict) {
				t.Fatalf("error = %v, want ErrConflict", err)
			}
		})
	}
}

func TestAcceptAmbiguousWriteError(t *testing.T) {
	repo := newStubRepo()
	repo.acceptErrAfterApply = true
	svc := &MatchingService{Repo: repo}
	seedContract(repo, models.KindFarmerOffer)

	// The store reports an error even though the write landed; the re-read
	// must recognize the caller as the committed acceptor.
	accepted, err := svc.Accept(context.Background(), "c-1", "buyer-5")
	if err != nil {
		t.Fatalf("Accept returned error despite applied write: %v", err)
	}
	if accepted.BuyerID != "buyer-5" {
		t.Fatalf("buyer slot = %q, want buyer-5", accepted.BuyerID)
	}
}

func TestAcceptBuyerDemandBindsFarmer(t *testing.T) {
	repo := newStubRepo()
	svc := &MatchingService{Repo: repo}
	seedContract(repo, models.KindBuyerDemand)

	accepted, err := svc.Accept(context.Background(), "c-1", "farmer-3")
	if err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}
	if accepted.FarmerID != "farmer-3" || accepted.BuyerID != "buyer-1" {
		t.Fatalf("slots = (%q, %q), want farmer-3 bound to buyer-1", accepted.FarmerID, accepted.BuyerID)
	}
}

func TestCancelContract(t *testing.T) {
	repo := newStubRepo()
	svc := &MatchingService{Repo: repo}
	seedContract(repo, models.KindFarmerOffer)

	cancelled, err := svc.Cancel(context.Background(), "c-1", "farmer-1")
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if cancelled.Status != models.StatusCancelled {
		t.Fatalf("status = %s, want %s", cancelled.Status, models.StatusCancelled)
	}
}

func TestCancelByNonCreator(t *testing.T) {
	repo := newStubRepo()
	svc := &MatchingService{Repo: repo}
	seedContract(repo, models.KindFarmerOffer)

	_, err := svc.Cancel(context.Background(), "c-1", "buyer-2")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
	latest, _ := repo.GetContractByID(context.Background(), "c-1")
	if latest.Status != models.StatusCreated {
		t.Fatalf("status changed to %s on rejected cancel", latest.Status)
	}
}

func TestCancelAfterAccept(t *testing.T) {
	repo := newStubRepo()
	svc := &MatchingService{Repo: repo}
	seedContract(repo, models.KindFarmerOffer)

	if _, err := svc.Accept(context.Background(), "c-1", "buyer-2"); err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), "c-1", "farmer-1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

func TestExpireDueContracts(t *testing.T) {
	repo := newStubRepo()
	c := seedContract(repo, models.KindFarmerOffer)
	past := time.Now().UTC().Add(-time.Hour)
	c.ExpiresAt = &past
	repo.put(c)

	svc := &ExpiryService{Repo: repo}
	n, err := svc.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d contracts, want 1", n)
	}
	latest, _ := repo.GetContractByID(context.Background(), "c-1")
	if latest.Status != models.StatusExpired {
		t.Fatalf("status = %s, want %s", latest.Status, models.StatusExpired)
	}
}

package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"agroforward/internal/config"
	"agroforward/internal/models"
)

var hexHashRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

func anchorService(repo *stubRepo) *AnchorService {
	return &AnchorService{
		Repo:   repo,
		Config: config.AnchorConfig{ExplorerBase: "https://amoy.polygonscan.com"},
	}
}

func TestAnchorAcceptedContract(t *testing.T) {
	repo := newStubRepo()
	svc := anchorService(repo)
	c := seedContract(repo, models.KindFarmerOffer)
	c.Status = models.StatusAccepted
	c.BuyerID = "buyer-2"
	repo.put(c)

	rec, err := svc.Anchor(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("Anchor returned error: %v", err)
	}
	if !hexHashRe.MatchString(rec.DocumentHash) {
		t.Fatalf("document hash %q is not 64 hex chars", rec.DocumentHash)
	}
	if rec.TxHash != "0x"+rec.DocumentHash {
		t.Fatalf("tx hash %q not derived from document hash", rec.TxHash)
	}
	if rec.ExplorerURL != "https://amoy.polygonscan.com/tx/"+rec.TxHash {
		t.Fatalf("explorer url = %q", rec.ExplorerURL)
	}

	stored, _ := repo.GetContractByID(context.Background(), "c-1")
	if stored.DocumentHash != rec.DocumentHash {
		t.Fatalf("stored hash %q differs from returned %q", stored.DocumentHash, rec.DocumentHash)
	}
	if stored.AnchoredAt == nil {
		t.Fatal("expected anchored_at to be set")
	}
}

func TestAnchorIdempotent(t *testing.T) {
	repo := newStubRepo()
	svc := anchorService(repo)
	c := seedContract(repo, models.KindFarmerOffer)
	c.Status = models.StatusAccepted
	c.BuyerID = "buyer-2"
	repo.put(c)

	first, err := svc.Anchor(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("first Anchor returned error: %v", err)
	}
	afterFirst, _ := repo.GetContractByID(context.Background(), "c-1")

	second, err := svc.Anchor(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("second Anchor returned error: %v", err)
	}
	if first.DocumentHash != second.DocumentHash ||
		first.TxHash != second.TxHash ||
		first.ExplorerURL != second.ExplorerURL {
		t.Fatalf("anchor results differ:\n%+v\n%+v", first, second)
	}

	afterSecond, _ := repo.GetContractByID(context.Background(), "c-1")
	if !afterFirst.AnchoredAt.Equal(*afterSecond.AnchoredAt) {
		t.Fatal("anchored_at changed on re-anchor")
	}
}

func TestAnchorUnaffectedByArtifactState(t *testing.T) {
	repo := newStubRepo()
	svc := anchorService(repo)
	c := seedContract(repo, models.KindFarmerOffer)
	c.Status = models.StatusAccepted
	c.BuyerID = "buyer-2"
	repo.put(c)

	first, err := svc.Anchor(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("Anchor returned error: %v", err)
	}
	if err := repo.MarkArtifactFailed(context.Background(), "c-1", "gateway down"); err != nil {
		t.Fatalf("MarkArtifactFailed returned error: %v", err)
	}

	second, err := svc.Anchor(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("Anchor returned error: %v", err)
	}
	if first.DocumentHash != second.DocumentHash {
		t.Fatalf("artifact failure changed the document hash: %s vs %s", first.DocumentHash, second.DocumentHash)
	}
}

func TestAnchorCreatedContract(t *testing.T) {
	repo := newStubRepo()
	svc := anchorService(repo)
	seedContract(repo, models.KindFarmerOffer)

	if _, err := svc.Anchor(context.Background(), "c-1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

func TestAnchorMissingContract(t *testing.T) {
	repo := newStubRepo()
	svc := anchorService(repo)

	if _, err := svc.Anchor(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestAnchorEnqueuesUnpublishedArtifact(t *testing.T) {
	repo := newStubRepo()
	enq := &stubEnqueuer{}
	svc := anchorService(repo)
	svc.Publisher = enq
	c := seedContract(repo, models.KindFarmerOffer)
	c.Status = models.StatusAccepted
	c.BuyerID = "buyer-2"
	c.ArtifactStatus = models.ArtifactFailed
	repo.put(c)

	if _, err := svc.Anchor(context.Background(), "c-1"); err != nil {
		t.Fatalf("Anchor returned error: %v", err)
	}
	if len(enq.ids) != 1 {
		t.Fatalf("publisher enqueued %v, want [c-1]", enq.ids)
	}
}

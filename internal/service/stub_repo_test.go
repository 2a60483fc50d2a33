package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"agroforward/internal/models"
	"agroforward/internal/repository"
)

// stubRepo is an in-memory repository.Repository with the same conditional
// write semantics as the gorm store: the status predicate is evaluated under
// the same lock as the mutation, so concurrency tests exercise the real
// single-winner behavior.
type stubRepo struct {
	mu        sync.Mutex
	contracts map[string]*models.Contract
	notes     []models.Notification

	failGet    bool
	failInsert bool
	// acceptErrAfterApply makes AcceptContract apply the update and then
	// report an error, simulating a timeout after the write landed.
	acceptErrAfterApply bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{contracts: map[string]*models.Contract{}}
}

func (s *stubRepo) put(c *models.Contract) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.contracts[c.ID] = &cp
}

func (s *stubRepo) InsertContract(ctx context.Context, item *models.Contract) error {
	if s.failInsert {
		return errors.New("insert failed")
	}
	s.put(item)
	return nil
}

func (s *stubRepo) GetContractByID(ctx context.Context, id string) (*models.Contract, error) {
	if s.failGet {
		return nil, errors.New("get failed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *stubRepo) ListContracts(ctx context.Context, params repository.ListContractsParams) ([]models.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Contract
	for _, c := range s.contracts {
		if params.Status != nil && c.Status != *params.Status {
			continue
		}
		if params.Kind != nil && c.Kind != *params.Kind {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *stubRepo) CountContracts(ctx context.Context, params repository.ListContractsParams) (int64, error) {
	items, _ := s.ListContracts(ctx, params)
	return int64(len(items)), nil
}

func (s *stubRepo) AcceptContract(ctx context.Context, id, kind, acceptorID string, acceptedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok || c.Status != models.StatusCreated {
		return 0, nil
	}
	if kind == models.KindBuyerDemand {
		if c.FarmerID != "" {
			return 0, nil
		}
		c.FarmerID = acceptorID
	} else {
		if c.BuyerID != "" {
			return 0, nil
		}
		c.BuyerID = acceptorID
	}
	c.Status = models.StatusAccepted
	c.AcceptedAt = &acceptedAt
	c.ArtifactStatus = models.ArtifactPending
	if s.acceptErrAfterApply {
		return 0, errors.New("write timed out")
	}
	return 1, nil
}

func (s *stubRepo) CancelContract(ctx context.Context, id, kind, requesterID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok || c.Status != models.StatusCreated {
		return 0, nil
	}
	creator := c.FarmerID
	if kind == models.KindBuyerDemand {
		creator = c.BuyerID
	}
	if creator != requesterID {
		return 0, nil
	}
	c.Status = models.StatusCancelled
	return 1, nil
}

func (s *stubRepo) ExpireDueContracts(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.contracts {
		if c.Status == models.StatusCreated && c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
			c.Status = models.StatusExpired
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) SaveVerification(ctx context.Context, id, documentHash, txHash, explorerURL string, anchoredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return errors.New("contract missing")
	}
	c.DocumentHash = documentHash
	c.AnchorTxHash = txHash
	c.AnchorExplorerURL = explorerURL
	if c.AnchoredAt == nil {
		c.AnchoredAt = &anchoredAt
	}
	return nil
}

func (s *stubRepo) MarkArtifactPending(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok || c.Status != models.StatusAccepted || c.ArtifactStatus == models.ArtifactPublished {
		return 0, nil
	}
	c.ArtifactStatus = models.ArtifactPending
	c.ArtifactError = ""
	return 1, nil
}

func (s *stubRepo) MarkArtifactPublished(ctx context.Context, id, cid, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return errors.New("contract missing")
	}
	c.ArtifactStatus = models.ArtifactPublished
	c.ArtifactCID = cid
	c.ArtifactURL = url
	c.ArtifactError = ""
	return nil
}

func (s *stubRepo) MarkArtifactFailed(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return errors.New("contract missing")
	}
	if c.ArtifactStatus == models.ArtifactPublished {
		return nil
	}
	c.ArtifactStatus = models.ArtifactFailed
	c.ArtifactError = reason
	c.PublishAttempts++
	return nil
}

func (s *stubRepo) ListPublishDue(ctx context.Context, maxAttempts, limit int) ([]models.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Contract
	for _, c := range s.contracts {
		if c.Status != models.StatusAccepted {
			continue
		}
		if c.ArtifactStatus == models.ArtifactPending ||
			(c.ArtifactStatus == models.ArtifactFailed && c.PublishAttempts < maxAttempts) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *stubRepo) InsertNotification(ctx context.Context, item *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, *item)
	return nil
}

func (s *stubRepo) ListNotifications(ctx context.Context, params repository.ListNotificationsParams) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notes {
		if params.UserID != nil && n.UserID != *params.UserID {
			continue
		}
		if params.UnreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *stubRepo) CountNotifications(ctx context.Context, params repository.ListNotificationsParams) (int64, error) {
	items, _ := s.ListNotifications(ctx, params)
	return int64(len(items)), nil
}

func (s *stubRepo) MarkNotificationRead(ctx context.Context, id, userID string, readAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notes {
		if s.notes[i].ID == id && s.notes[i].UserID == userID && !s.notes[i].Read {
			s.notes[i].Read = true
			s.notes[i].ReadAt = &readAt
			return 1, nil
		}
	}
	return 0, nil
}

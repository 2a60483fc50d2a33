package repository

import (
	"context"
	"time"

	"agroforward/internal/models"
)

type ListContractsParams struct {
	Kind     *string
	Status   *string
	FarmerID *string
	BuyerID  *string
	Limit    int
	Offset   int
	OrderBy  string
	Asc      *bool
}

type ListNotificationsParams struct {
	UserID     *string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// Repository is the contract store plus the notification outbox. All state
// transitions go through the conditional methods, which apply only when the
// current status matches the expected one and report rows affected; callers
// must treat zero rows as "re-read and classify", never as success.
type Repository interface {
	InsertContract(ctx context.Context, item *models.Contract) error
	GetContractByID(ctx context.Context, id string) (*models.Contract, error)
	ListContracts(ctx context.Context, params ListContractsParams) ([]models.Contract, error)
	CountContracts(ctx context.Context, params ListContractsParams) (int64, error)

	// AcceptContract fills the empty party slot for the contract's kind and
	// moves CREATED -> ACCEPTED in one conditional write. This write is the
	// single serialization point for concurrent acceptors.
	AcceptContract(ctx context.Context, id, kind, acceptorID string, acceptedAt time.Time) (int64, error)

	// CancelContract moves CREATED -> CANCELLED, only when requesterID is the
	// creating party for the contract's kind.
	CancelContract(ctx context.Context, id, kind, requesterID string) (int64, error)

	// ExpireDueContracts moves every CREATED contract whose expiry has passed
	// to EXPIRED.
	ExpireDueContracts(ctx context.Context, now time.Time) (int64, error)

	// SaveVerification persists the anchor record. Writing the same values
	// twice is a no-op; anchored_at keeps its first value.
	SaveVerification(ctx context.Context, id, documentHash, txHash, explorerURL string, anchoredAt time.Time) error

	MarkArtifactPending(ctx context.Context, id string) (int64, error)
	MarkArtifactPublished(ctx context.Context, id, cid, url string) error
	MarkArtifactFailed(ctx context.Context, id, reason string) error
	ListPublishDue(ctx context.Context, maxAttempts, limit int) ([]models.Contract, error)

	InsertNotification(ctx context.Context, item *models.Notification) error
	ListNotifications(ctx context.Context, params ListNotificationsParams) ([]models.Notification, error)
	CountNotifications(ctx context.Context, params ListNotificationsParams) (int64, error)
	MarkNotificationRead(ctx context.Context, id, userID string, readAt time.Time) (int64, error)
}

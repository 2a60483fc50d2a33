package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"agroforward/internal/models"
	"agroforward/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- contracts ---------------------------------------------------------------

func (s *Store) InsertContract(ctx context.Context, item *models.Contract) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetContractByID(ctx context.Context, id string) (*models.Contract, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var item models.Contract
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListContracts(ctx context.Context, params repository.ListContractsParams) ([]models.Contract, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyContractFilters(s.db.WithContext(ctx).Model(&models.Contract{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.Contract
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountContracts(ctx context.Context, params repository.ListContractsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := applyContractFilters(s.db.WithContext(ctx).Model(&models.Contract{}), params)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func applyContractFilters(query *gorm.DB, params repository.ListContractsParams) *gorm.DB {
	if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" {
		query = query.Where("kind = ?", strings.TrimSpace(*params.Kind))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.FarmerID != nil && strings.TrimSpace(*params.FarmerID) != "" {
		query = query.Where("farmer_id = ?", strings.TrimSpace(*params.FarmerID))
	}
	if params.BuyerID != nil && strings.TrimSpace(*params.BuyerID) != "" {
		query = query.Where("buyer_id = ?", strings.TrimSpace(*params.BuyerID))
	}
	return query
}

// AcceptContract is the single serialization point for acceptance. The status
// predicate rides in the same UPDATE as the mutation, so the database decides
// the winner; the service layer never infers success from anything but the
// rows-affected count.
func (s *Store) AcceptContract(ctx context.Context, id, kind, acceptorID string, acceptedAt time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	slot := "buyer_id"
	if kind == models.KindBuyerDemand {
		slot = "farmer_id"
	}
	if acceptedAt.IsZero() {
		acceptedAt = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ?", id).
		Where("status = ?", models.StatusCreated).
		Where("(" + slot + " IS NULL OR " + slot + " = '')").
		Updates(map[string]any{
			"status":          models.StatusAccepted,
			slot:              acceptorID,
			"accepted_at":     acceptedAt,
			"artifact_status": models.ArtifactPending,
			"updated_at":      time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (s *Store) CancelContract(ctx context.Context, id, kind, requesterID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	creator := "farmer_id"
	if kind == models.KindBuyerDemand {
		creator = "buyer_id"
	}
	res := s.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ?", id).
		Where("status = ?", models.StatusCreated).
		Where(creator+" = ?", requesterID).
		Updates(map[string]any{
			"status":     models.StatusCancelled,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (s *Store) ExpireDueContracts(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("status = ?", models.StatusCreated).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", now).
		Updates(map[string]any{"status": models.StatusExpired, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// --- verification ------------------------------------------------------------

func (s *Store) SaveVerification(ctx context.Context, id, documentHash, txHash, explorerURL string, anchoredAt time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"document_hash":       documentHash,
			"anchor_tx_hash":      txHash,
			"anchor_explorer_url": explorerURL,
			"anchored_at":         gorm.Expr("COALESCE(anchored_at, ?)", anchoredAt),
			"updated_at":          time.Now().UTC(),
		}).Error
}

func (s *Store) MarkArtifactPending(ctx context.Context, id string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ?", id).
		Where("status = ?", models.StatusAccepted).
		Where("artifact_status <> ?", models.ArtifactPublished).
		Updates(map[string]any{
			"artifact_status": models.ArtifactPending,
			"artifact_error":  "",
			"updated_at":      time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (s *Store) MarkArtifactPublished(ctx context.Context, id, cid, url string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"artifact_status": models.ArtifactPublished,
			"artifact_cid":    cid,
			"artifact_url":    url,
			"artifact_error":  "",
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (s *Store) MarkArtifactFailed(ctx context.Context, id, reason string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ?", id).
		Where("artifact_status <> ?", models.ArtifactPublished).
		Updates(map[string]any{
			"artifact_status":  models.ArtifactFailed,
			"artifact_error":   reason,
			"publish_attempts": gorm.Expr("publish_attempts + 1"),
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (s *Store) ListPublishDue(ctx context.Context, maxAttempts, limit int) ([]models.Contract, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	var items []models.Contract
	err := s.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("status = ?", models.StatusAccepted).
		Where("artifact_status = ? OR (artifact_status = ? AND publish_attempts < ?)",
			models.ArtifactPending, models.ArtifactFailed, maxAttempts).
		Order("updated_at asc").
		Limit(normalizeLimit(limit, 50)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- notifications -----------------------------------------------------------

func (s *Store) InsertNotification(ctx context.Context, item *models.Notification) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListNotifications(ctx context.Context, params repository.ListNotificationsParams) ([]models.Notification, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyNotificationFilters(s.db.WithContext(ctx).Model(&models.Notification{}), params)
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.Notification
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountNotifications(ctx context.Context, params repository.ListNotificationsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := applyNotificationFilters(s.db.WithContext(ctx).Model(&models.Notification{}), params)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func applyNotificationFilters(query *gorm.DB, params repository.ListNotificationsParams) *gorm.DB {
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.UnreadOnly {
		query = query.Where("read = ?", false)
	}
	return query
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string, readAt time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if readAt.IsZero() {
		readAt = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Where("read = ?", false).
		Updates(map[string]any{"read": true, "read_at": readAt})
	return res.RowsAffected, res.Error
}

// --- helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

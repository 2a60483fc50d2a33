package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agroforward/internal/auth"
	"agroforward/internal/models"
	"agroforward/internal/repository"
	"agroforward/internal/service"
)

type ContractHandler struct {
	Repo      repository.Repository
	Matching  *service.MatchingService
	Anchor    *service.AnchorService
	Publisher service.Enqueuer
	Logger    *zap.Logger
}

func (h *ContractHandler) Register(r *gin.Engine) {
	g := r.Group("/api/contracts")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/accept", h.accept)
	g.POST("/:id/cancel", h.cancel)
	g.POST("/:id/anchor", h.anchor)
	g.POST("/:id/publish", h.publish)
}

type createContractRequest struct {
	Kind           string           `json:"kind"`
	Crop           string           `json:"crop"`
	Quantity       decimal.Decimal  `json:"quantity"`
	Unit           string           `json:"unit"`
	StrikePrice    decimal.Decimal  `json:"strikePrice"`
	DeliveryWindow string           `json:"deliveryWindow"`
	PartyID        string           `json:"partyId"`
	HedgeType      string           `json:"hedgeType"`
	PremiumPerUnit *decimal.Decimal `json:"premiumPerUnit"`
	ExpiryMonths   int              `json:"expiryMonths"`
}

type partyRequest struct {
	PartyID string `json:"partyId"`
}

// @Summary Create a contract proposal
// @Tags contracts
// @Accept json
// @Produce json
// @Param request body createContractRequest true "contract terms"
// @Success 201 {object} models.Contract
// @Failure 400 {object} map[string]any
// @Router /api/contracts [post]
func (h *ContractHandler) create(c *gin.Context) {
	if h.Matching == nil {
		Error(c, http.StatusServiceUnavailable, "matching unavailable", nil)
		return
	}
	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	item, err := h.Matching.Create(c.Request.Context(), service.CreateContractInput{
		Kind:           req.Kind,
		Crop:           req.Crop,
		Quantity:       req.Quantity,
		Unit:           req.Unit,
		StrikePrice:    req.StrikePrice,
		DeliveryWindow: req.DeliveryWindow,
		PartyID:        resolveParty(c, req.PartyID),
		HedgeType:      req.HedgeType,
		PremiumPerUnit: req.PremiumPerUnit,
		ExpiryMonths:   req.ExpiryMonths,
	})
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, item)
}

// @Summary List contracts
// @Tags contracts
// @Produce json
// @Param kind query string false "FARMER_OFFER or BUYER_DEMAND"
// @Param status query string false "CREATED, ACCEPTED, CANCELLED or EXPIRED"
// @Success 200 {array} models.Contract
// @Router /api/contracts [get]
func (h *ContractHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListContractsParams{
		Kind:     strQueryPtr(c, "kind"),
		Status:   strQueryPtr(c, "status"),
		FarmerID: strQueryPtr(c, "farmer_id"),
		BuyerID:  strQueryPtr(c, "buyer_id"),
		Limit:    limit,
		Offset:   offset,
	}
	// Role-scoped browsing, matching the client apps' queries.
	if userID := strQueryPtr(c, "user_id"); userID != nil {
		switch strings.ToLower(c.Query("role")) {
		case "farmer":
			params.FarmerID = userID
		case "buyer":
			params.BuyerID = userID
		}
	}
	items, err := h.Repo.ListContracts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountContracts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get a contract
// @Tags contracts
// @Produce json
// @Param id path string true "contract id"
// @Success 200 {object} models.Contract
// @Failure 404 {object} map[string]any
// @Router /api/contracts/{id} [get]
func (h *ContractHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	item, err := h.Repo.GetContractByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "contract not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Accept a contract
// @Description Exactly one concurrent acceptor wins; every other caller gets 409.
// @Tags contracts
// @Accept json
// @Produce json
// @Param id path string true "contract id"
// @Param request body partyRequest true "accepting party"
// @Success 200 {object} models.Contract
// @Failure 404 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/contracts/{id}/accept [post]
func (h *ContractHandler) accept(c *gin.Context) {
	if h.Matching == nil {
		Error(c, http.StatusServiceUnavailable, "matching unavailable", nil)
		return
	}
	var req partyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	item, err := h.Matching.Accept(c.Request.Context(), c.Param("id"), resolveParty(c, req.PartyID))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, item, nil)
}

// @Summary Cancel a contract
// @Tags contracts
// @Accept json
// @Produce json
// @Param id path string true "contract id"
// @Param request body partyRequest true "requesting party (must be the creator)"
// @Success 200 {object} models.Contract
// @Failure 409 {object} map[string]any
// @Router /api/contracts/{id}/cancel [post]
func (h *ContractHandler) cancel(c *gin.Context) {
	if h.Matching == nil {
		Error(c, http.StatusServiceUnavailable, "matching unavailable", nil)
		return
	}
	var req partyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	item, err := h.Matching.Cancel(c.Request.Context(), c.Param("id"), resolveParty(c, req.PartyID))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, item, nil)
}

// @Summary Anchor a contract
// @Description Computes the deterministic verification record. Idempotent.
// @Tags contracts
// @Produce json
// @Param id path string true "contract id"
// @Success 200 {object} service.VerificationRecord
// @Failure 409 {object} map[string]any
// @Router /api/contracts/{id}/anchor [post]
func (h *ContractHandler) anchor(c *gin.Context) {
	if h.Anchor == nil {
		Error(c, http.StatusServiceUnavailable, "anchoring unavailable", nil)
		return
	}
	record, err := h.Anchor.Anchor(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Ok(c, record, nil)
}

// @Summary Re-queue artifact publication
// @Tags contracts
// @Produce json
// @Param id path string true "contract id"
// @Success 202 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/contracts/{id}/publish [post]
func (h *ContractHandler) publish(c *gin.Context) {
	if h.Repo == nil || h.Publisher == nil {
		Error(c, http.StatusServiceUnavailable, "publisher unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	rows, err := h.Repo.MarkArtifactPending(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if rows == 0 {
		item, err := h.Repo.GetContractByID(c.Request.Context(), id)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		if item == nil {
			Error(c, http.StatusNotFound, "contract not found", nil)
			return
		}
		if item.ArtifactStatus == models.ArtifactPublished {
			Ok(c, gin.H{"artifactStatus": item.ArtifactStatus, "artifactCid": item.ArtifactCID}, nil)
			return
		}
		Error(c, http.StatusConflict, "contract is "+item.Status+", only accepted contracts are published", nil)
		return
	}
	h.Publisher.Enqueue(id)
	c.JSON(http.StatusAccepted, apiResponse{Code: 0, Message: "queued", Data: gin.H{"contractId": id}})
}

func resolveParty(c *gin.Context, fallback string) string {
	if id := auth.PartyID(c); id != "" {
		return id
	}
	return strings.TrimSpace(fallback)
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

func strQueryPtr(c *gin.Context, key string) *string {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	return &raw
}

func paginationMeta(limit, offset int, total int64) map[string]any {
	return map[string]any{
		"limit":  limit,
		"offset": offset,
		"total":  total,
	}
}

package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"agroforward/internal/auth"
	"agroforward/internal/repository"
)

type NotificationHandler struct {
	Repo repository.Repository
}

func (h *NotificationHandler) Register(r *gin.Engine) {
	g := r.Group("/api/notifications")
	g.GET("", h.list)
	g.POST("/:id/read", h.markRead)
}

// @Summary List notifications for a party
// @Tags notifications
// @Produce json
// @Param user_id query string false "party id (ignored when authenticated)"
// @Param unread query bool false "unread only"
// @Success 200 {array} models.Notification
// @Router /api/notifications [get]
func (h *NotificationHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	userID := auth.PartyID(c)
	if userID == "" {
		userID = strings.TrimSpace(c.Query("user_id"))
	}
	if userID == "" {
		Error(c, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListNotificationsParams{
		UserID:     &userID,
		UnreadOnly: strings.EqualFold(c.Query("unread"), "true"),
		Limit:      limit,
		Offset:     offset,
	}
	items, err := h.Repo.ListNotifications(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountNotifications(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Mark a notification read
// @Tags notifications
// @Produce json
// @Param id path string true "notification id"
// @Success 200 {object} map[string]any
// @Router /api/notifications/{id}/read [post]
func (h *NotificationHandler) markRead(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	userID := auth.PartyID(c)
	if userID == "" {
		var req partyRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			userID = strings.TrimSpace(req.PartyID)
		}
	}
	if userID == "" {
		Error(c, http.StatusBadRequest, "party id is required", nil)
		return
	}
	rows, err := h.Repo.MarkNotificationRead(c.Request.Context(), strings.TrimSpace(c.Param("id")), userID, time.Now().UTC())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if rows == 0 {
		Error(c, http.StatusNotFound, "notification not found", nil)
		return
	}
	Ok(c, gin.H{"read": true}, nil)
}

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"downtime-backend/internal/apperr"
	"downtime-backend/internal/model"
	"downtime-backend/internal/mw"
	"downtime-backend/internal/tenant"
)

type putSubscriptionRequest struct {
	Endpoint           string   `json:"endpoint" binding:"required"`
	P256DH             string   `json:"p256dh" binding:"required"`
	Auth               string   `json:"auth" binding:"required"`
	SubscribedMachines []string `json:"subscribed_machines"`
}

// subscriptionTenant returns the single tenant a subscription belongs to.
func subscriptionTenant(c *gin.Context) (tenant.Scope, error) {
	scope := mw.Scope(c)
	if scope.All {
		return scope, apperr.Validation("subscriptions need a concrete tenant")
	}
	return scope, nil
}

// PutSubscription handles the creation or replacement of a subscription.
// Machines outside the caller's tenant are ignored.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	scope, err := subscriptionTenant(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
		TenantID: scope.TenantID,
	}

	err = h.store.DB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var existing model.PushSubscription
		err := tx.Select("tenant_id").First(&existing, "endpoint = ?", req.Endpoint).Error
		switch {
		case err == nil && !scope.Allows(existing.TenantID):
			return apperr.Conflict("", "endpoint is registered for another tenant")
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(&subscription).Error; err != nil {
			return err
		}

		machines := []*model.Machine{}
		if len(req.SubscribedMachines) > 0 {
			if err := tx.Where("tenant_id = ? AND id IN ?", scope.TenantID, req.SubscribedMachines).
				Find(&machines).Error; err != nil {
				return err
			}
		}

		return tx.Model(&subscription).Association("Machines").Replace(machines)
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	scope, err := subscriptionTenant(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.store.DB().WithContext(c.Request.Context()).
		Where("endpoint = ? AND tenant_id = ?", req.Endpoint, scope.TenantID).
		Delete(&model.PushSubscription{}).Error; err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam returns the undecoded value of key. Push endpoints are URLs
// and must be matched exactly as the browser sent them.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscription handles the retrieval of a subscription.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		h.writeError(c, apperr.Validation("endpoint is required"))
		return
	}
	scope, err := subscriptionTenant(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var subscription model.PushSubscription
	if err := h.store.DB().WithContext(c.Request.Context()).
		Preload("Machines").
		First(&subscription, "endpoint = ? AND tenant_id = ?", raw, scope.TenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.writeError(c, apperr.NotFound("subscription not found"))
		} else {
			h.writeError(c, err)
		}
		return
	}

	machineIDs := make([]string, len(subscription.Machines))
	for i, machine := range subscription.Machines {
		machineIDs[i] = machine.ID
	}

	c.JSON(http.StatusOK, gin.H{"subscribed_machines": machineIDs})
}

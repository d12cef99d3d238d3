package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/virelabs/launchpad/internal/domain"
	"github.com/virelabs/launchpad/internal/repository"
	"github.com/virelabs/launchpad/internal/service"
)

// PoolHandler serves resource-pool claim/release and inventory endpoints.
type PoolHandler struct {
	poolSvc  *service.PoolService
	poolRepo *repository.PoolRepository
}

// NewPoolHandler creates a PoolHandler.
func NewPoolHandler(poolSvc *service.PoolService, poolRepo *repository.PoolRepository) *PoolHandler {
	return &PoolHandler{poolSvc: poolSvc, poolRepo: poolRepo}
}

// Claim godoc
// POST /api/pool/claim [API key]
// Body: {"holder_id":"uuid","kind":"wallet","identifier":""}
func (h *PoolHandler) Claim(c *gin.Context) {
	var body struct {
		HolderID   string `json:"holder_id"  binding:"required"`
		Kind       string `json:"kind"`
		Identifier string `json:"identifier"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	holderID, err := uuid.Parse(body.HolderID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_HOLDER_ID", "invalid holder_id format")
		return
	}

	filter := domain.ClaimFilter{
		Kind:       domain.PoolItemKind(body.Kind),
		Identifier: body.Identifier,
	}
	item, err := h.poolSvc.Claim(c.Request.Context(), holderID, filter)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPoolExhausted):
			respondError(c, http.StatusConflict, "ERR_POOL_EXHAUSTED", err.Error())
		case errors.Is(err, domain.ErrInvalidAmount):
			respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not claim pool item")
		}
		return
	}
	respondSuccess(c, http.StatusOK, item)
}

// Release godoc
// POST /api/pool/release [API key]
// Body: {"holder_id":"uuid","identifier":"base58"}
func (h *PoolHandler) Release(c *gin.Context) {
	var body struct {
		HolderID   string `json:"holder_id"  binding:"required"`
		Identifier string `json:"identifier" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	holderID, err := uuid.Parse(body.HolderID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_HOLDER_ID", "invalid holder_id format")
		return
	}

	if err := h.poolSvc.Release(c.Request.Context(), body.Identifier, holderID); err != nil {
		switch {
		case errors.Is(err, domain.ErrPoolItemNotFound):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
		case errors.Is(err, domain.ErrNotOwner):
			respondError(c, http.StatusForbidden, "ERR_NOT_OWNER", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not release pool item")
		}
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"identifier": body.Identifier, "released": true})
}

// ResetErrored godoc
// POST /api/pool/items/:identifier/reset [API key]
func (h *PoolHandler) ResetErrored(c *gin.Context) {
	identifier := c.Param("identifier")

	if err := h.poolSvc.ResetErrored(c.Request.Context(), identifier); err != nil {
		switch {
		case errors.Is(err, domain.ErrPoolItemNotFound):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
		case errors.Is(err, domain.ErrItemNotErrored):
			respondError(c, http.StatusConflict, "ERR_NOT_ERRORED", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not reset pool item")
		}
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"identifier": identifier, "status": domain.ItemAvailable})
}

// GetItem godoc
// GET /api/pool/items/:identifier
func (h *PoolHandler) GetItem(c *gin.Context) {
	item, err := h.poolSvc.Get(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		if domain.IsNotFound(err) {
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch pool item")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"item":        item,
		"balance_sol": item.BalanceSOL(),
	})
}

// Stats godoc
// GET /api/pool/stats
func (h *PoolHandler) Stats(c *gin.Context) {
	stats, err := h.poolSvc.Stats(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch pool stats")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"counts": stats,
		"total":  stats.Total(),
	})
}

// ListItems godoc
// GET /api/pool/items?status=available&page=1&limit=20
func (h *PoolHandler) ListItems(c *gin.Context) {
	status := domain.PoolItemStatus(c.DefaultQuery("status", string(domain.ItemAvailable)))
	if !status.IsValid() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_STATUS", "unknown pool item status")
		return
	}
	page, limit := parsePagination(c)

	items, err := h.poolRepo.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not list pool items")
		return
	}
	respondList(c, items, len(items), page, limit)
}

// CreateItem godoc
// POST /api/pool/items [API key]
// Body: {"identifier":"base58","kind":"wallet","secret":"base58"}
func (h *PoolHandler) CreateItem(c *gin.Context) {
	var body struct {
		Identifier string `json:"identifier" binding:"required"`
		Kind       string `json:"kind"       binding:"required"`
		Secret     string `json:"secret"     binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	kind := domain.PoolItemKind(body.Kind)
	if kind != domain.KindAddress && kind != domain.KindWallet {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_KIND", "kind must be address or wallet")
		return
	}

	item := &domain.PoolItem{
		Identifier: body.Identifier,
		Kind:       kind,
		Secret:     body.Secret,
	}
	if err := h.poolSvc.CreateItem(c.Request.Context(), item); err != nil {
		switch {
		case errors.Is(err, domain.ErrSecretMismatch):
			respondError(c, http.StatusBadRequest, "ERR_SECRET_MISMATCH", err.Error())
		case errors.Is(err, domain.ErrInvalidAmount):
			respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not create pool item")
		}
		return
	}
	respondSuccess(c, http.StatusCreated, item)
}

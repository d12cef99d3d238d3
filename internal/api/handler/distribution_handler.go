package handler

import (
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/virelabs/launchpad/internal/domain"
	"github.com/virelabs/launchpad/internal/plan"
	"github.com/virelabs/launchpad/internal/repository"
	"github.com/virelabs/launchpad/internal/service"
)

// DistributionHandler serves launch execution, plan preview, and batch
// audit endpoints.
type DistributionHandler struct {
	launchSvc      *service.LaunchService
	settlementRepo *repository.SettlementRepository
	planCfg        plan.Config
}

// NewDistributionHandler creates a DistributionHandler.
func NewDistributionHandler(
	launchSvc *service.LaunchService,
	settlementRepo *repository.SettlementRepository,
	planCfg plan.Config,
) *DistributionHandler {
	return &DistributionHandler{
		launchSvc:      launchSvc,
		settlementRepo: settlementRepo,
		planCfg:        planCfg,
	}
}

// Launch godoc
// POST /api/launches [API key]
// Body: {"total_lamports":50000000000,"slot_count":40,"seed":42}
func (h *DistributionHandler) Launch(c *gin.Context) {
	var req service.LaunchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	if req.TotalLamports == 0 || req.SlotCount < 1 {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "total_lamports and slot_count must be positive")
		return
	}

	result, err := h.launchSvc.Launch(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPoolExhausted):
			respondError(c, http.StatusConflict, "ERR_POOL_EXHAUSTED", err.Error())
		case errors.Is(err, domain.ErrInsufficientTotal):
			respondError(c, http.StatusBadRequest, "ERR_INSUFFICIENT_TOTAL", err.Error())
		case errors.Is(err, domain.ErrInsufficientLiquidity):
			respondError(c, http.StatusConflict, "ERR_INSUFFICIENT_LIQUIDITY", err.Error())
		case errors.Is(err, domain.ErrInvalidAmount):
			respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "launch failed")
		}
		return
	}
	respondSuccess(c, http.StatusCreated, result)
}

// PreviewPlan godoc
// POST /api/distributions/plan
// Body: {"total_lamports":50000000000,"slot_count":40,"seed":42}
//
// Pure preview: sizes the slots without touching the pool, the curve, or the
// ledger. With the same seed, the launch endpoint produces the same amounts.
func (h *DistributionHandler) PreviewPlan(c *gin.Context) {
	var body struct {
		TotalLamports uint64 `json:"total_lamports" binding:"required"`
		SlotCount     int    `json:"slot_count"     binding:"required"`
		Seed          *int64 `json:"seed"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	if body.SlotCount < 1 {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "slot_count must be positive")
		return
	}

	seed := time.Now().UnixNano()
	if body.Seed != nil {
		seed = *body.Seed
	}

	distribution, err := plan.Plan(body.TotalLamports, body.SlotCount, h.planCfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientTotal):
			respondError(c, http.StatusBadRequest, "ERR_INSUFFICIENT_TOTAL", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not build plan")
		}
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"seed": seed,
		"plan": distribution,
	})
}

// GetBatch godoc
// GET /api/batches/:id
func (h *DistributionHandler) GetBatch(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_BATCH_ID", "invalid batch id")
		return
	}

	settlements, err := h.settlementRepo.GetByBatch(c.Request.Context(), batchID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch batch")
		return
	}
	if len(settlements) == 0 {
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "no settlements for this batch")
		return
	}

	summary, err := h.settlementRepo.SummarizeBatch(c.Request.Context(), batchID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not summarise batch")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"summary":     summary,
		"settlements": settlements,
	})
}

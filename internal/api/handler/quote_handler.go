package handler

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/virelabs/launchpad/internal/domain"
	"github.com/virelabs/launchpad/internal/service"
)

// QuoteHandler serves bonding-curve quote and trade endpoints.
type QuoteHandler struct {
	quoteSvc *service.QuoteService
}

// NewQuoteHandler creates a QuoteHandler.
func NewQuoteHandler(quoteSvc *service.QuoteService) *QuoteHandler {
	return &QuoteHandler{quoteSvc: quoteSvc}
}

// quoteResponse is the wire shape for both sides. Amounts travel as decimal
// strings: they are exact integers that can exceed what JSON numbers carry.
type quoteResponse struct {
	Mint                string `json:"mint"`
	AmountIn            string `json:"amount_in"`
	AmountOut           string `json:"amount_out"`
	VirtualTokenReserve string `json:"virtual_token_reserve"`
	VirtualBaseReserve  string `json:"virtual_base_reserve"`
	RealTokenReserve    string `json:"real_token_reserve"`
}

func newQuoteResponse(mint string, in, out *big.Int, updated domain.ReserveState) quoteResponse {
	return quoteResponse{
		Mint:                mint,
		AmountIn:            in.String(),
		AmountOut:           out.String(),
		VirtualTokenReserve: updated.VirtualTokenReserve.String(),
		VirtualBaseReserve:  updated.VirtualBaseReserve.String(),
		RealTokenReserve:    updated.RealTokenReserve.String(),
	}
}

// parseAmount reads a positive exact-integer amount from a decimal string.
func parseAmount(raw string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() <= 0 {
		return nil, false
	}
	return n, true
}

func respondQuoteError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_MINT_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", err.Error())
	case errors.Is(err, domain.ErrInsufficientLiquidity):
		respondError(c, http.StatusConflict, "ERR_INSUFFICIENT_LIQUIDITY", err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "ERR_RESERVE_CONFLICT", "reserves are under heavy contention, retry later")
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not quote")
	}
}

// QuoteBuy godoc
// GET /api/quotes/:mint/buy?base_in=100000000
func (h *QuoteHandler) QuoteBuy(c *gin.Context) {
	mint := c.Param("mint")
	baseIn, ok := parseAmount(c.Query("base_in"))
	if !ok {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "base_in must be a positive integer string")
		return
	}

	result, err := h.quoteSvc.QuoteBuy(c.Request.Context(), mint, baseIn)
	if err != nil {
		respondQuoteError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, newQuoteResponse(mint, baseIn, result.TokenOut, result.Updated))
}

// QuoteSell godoc
// GET /api/quotes/:mint/sell?token_in=90909091
func (h *QuoteHandler) QuoteSell(c *gin.Context) {
	mint := c.Param("mint")
	tokenIn, ok := parseAmount(c.Query("token_in"))
	if !ok {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "token_in must be a positive integer string")
		return
	}

	result, err := h.quoteSvc.QuoteSell(c.Request.Context(), mint, tokenIn)
	if err != nil {
		respondQuoteError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, newQuoteResponse(mint, tokenIn, result.BaseOut, result.Updated))
}

// CommitBuy godoc
// POST /api/quotes/:mint/buy [API key]
// Body: {"base_in":"100000000"}
func (h *QuoteHandler) CommitBuy(c *gin.Context) {
	mint := c.Param("mint")

	var body struct {
		BaseIn string `json:"base_in" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	baseIn, ok := parseAmount(body.BaseIn)
	if !ok {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "base_in must be a positive integer string")
		return
	}

	result, err := h.quoteSvc.CommitBuy(c.Request.Context(), mint, baseIn)
	if err != nil {
		respondQuoteError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, newQuoteResponse(mint, baseIn, result.TokenOut, result.Updated))
}

// CommitSell godoc
// POST /api/quotes/:mint/sell [API key]
// Body: {"token_in":"90909091"}
func (h *QuoteHandler) CommitSell(c *gin.Context) {
	mint := c.Param("mint")

	var body struct {
		TokenIn string `json:"token_in" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	tokenIn, ok := parseAmount(body.TokenIn)
	if !ok {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "token_in must be a positive integer string")
		return
	}

	result, err := h.quoteSvc.CommitSell(c.Request.Context(), mint, tokenIn)
	if err != nil {
		respondQuoteError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, newQuoteResponse(mint, tokenIn, result.BaseOut, result.Updated))
}

package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lpgateway/internal/fault"
	"lpgateway/internal/preflight"
	"lpgateway/internal/service"
)

type handlers struct {
	p      Pipelines
	logger *zap.Logger
}

type mintRequest struct {
	UserID      string   `json:"user_id" binding:"required"`
	ChainID     uint64   `json:"chain_id" binding:"required"`
	TokenA      string   `json:"token_a" binding:"required"`
	TokenB      string   `json:"token_b" binding:"required"`
	AmountA     string   `json:"amount_a"`
	AmountB     string   `json:"amount_b"`
	Fee         *uint32  `json:"fee"`
	TickSpacing *int32   `json:"tick_spacing"`
	Hooks       string   `json:"hooks"`
	SlippagePct *float64 `json:"slippage_pct"`
	DeadlineSec int64    `json:"deadline_seconds"`
}

type approveRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	ChainID uint64 `json:"chain_id" binding:"required"`
	Token   string `json:"token" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	Spender string `json:"spender"`
}

func (h *handlers) discover(c *gin.Context) {
	chainID, err := strconv.ParseUint(c.Query("chain_id"), 10, 64)
	if err != nil {
		h.fail(c, fault.Validation("discover", "chain_id must be a positive integer"))
		return
	}
	in := service.DiscoverInput{
		ChainID: chainID,
		TokenA:  c.Query("token_a"),
		TokenB:  c.Query("token_b"),
		Hooks:   c.Query("hooks"),
	}
	if raw := c.Query("fee"); raw != "" {
		fee, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			h.fail(c, fault.Validation("discover", "invalid fee %q", raw))
			return
		}
		v := uint32(fee)
		in.Fee = &v
	}
	if raw := c.Query("tick_spacing"); raw != "" {
		spacing, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			h.fail(c, fault.Validation("discover", "invalid tick_spacing %q", raw))
			return
		}
		v := int32(spacing)
		in.TickSpacing = &v
	}

	res, err := h.p.Discover(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) mint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fault.Validation("mint", "invalid request: %v", err))
		return
	}
	res, err := h.p.Mint(c.Request.Context(), service.MintInput{
		UserID:      req.UserID,
		ChainID:     req.ChainID,
		TokenA:      req.TokenA,
		TokenB:      req.TokenB,
		AmountA:     req.AmountA,
		AmountB:     req.AmountB,
		Fee:         req.Fee,
		TickSpacing: req.TickSpacing,
		Hooks:       req.Hooks,
		SlippagePct: req.SlippagePct,
		Deadline:    time.Duration(req.DeadlineSec) * time.Second,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (h *handlers) approve(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fault.Validation("approve", "invalid request: %v", err))
		return
	}
	res, err := h.p.Approve(c.Request.Context(), service.ApproveInput{
		UserID:  req.UserID,
		ChainID: req.ChainID,
		Token:   req.Token,
		Amount:  req.Amount,
		Spender: req.Spender,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (h *handlers) listPositions(c *gin.Context) {
	chainID, err := strconv.ParseUint(c.Query("chain_id"), 10, 64)
	if err != nil {
		h.fail(c, fault.Validation("list positions", "chain_id must be a positive integer"))
		return
	}
	res, err := h.p.ListPositions(c.Request.Context(), c.Query("user_id"), chainID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": res})
}

func (h *handlers) wallet(c *gin.Context) {
	w, err := h.p.WalletFor(c.Request.Context(), c.Param("user"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind fault.Kind) int {
	switch kind {
	case fault.KindValidation, fault.KindContract:
		return http.StatusBadRequest
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindInsufficientFunds, fault.KindNotApproved:
		return http.StatusUnprocessableEntity
	case fault.KindTransient, fault.KindPolicyIntegrity:
		return http.StatusServiceUnavailable
	case fault.KindTransaction:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(c *gin.Context, err error) {
	kind := fault.KindOf(err)
	status := StatusFor(kind)
	body := gin.H{"error": string(kind), "message": err.Error()}

	var fe *fault.Error
	if errors.As(err, &fe) {
		if fe.Leg != "" {
			body["leg"] = fe.Leg
		}
		if fe.ChainID != 0 {
			body["chain_id"] = fe.ChainID
		}
	}
	var shortfall *preflight.Shortfall
	var approval *preflight.ApprovalNeeded
	switch {
	case errors.As(err, &shortfall):
		body["details"] = shortfall
	case errors.As(err, &approval):
		body["details"] = approval
	}

	if status >= http.StatusInternalServerError {
		h.logger.Warn("request failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, body)
}

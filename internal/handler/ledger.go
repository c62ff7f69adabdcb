package handler

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/waveledger/internal/deploy"
	"github.com/jmerrifield20/waveledger/internal/ledger"
	"go.uber.org/zap"
)

// Long-poll bounds for the confirmation endpoint.
const (
	defaultPollTimeout = 10 * time.Second
	maxPollTimeout     = 60 * time.Second
)

// LedgerHandler exposes the records of deployed ledgers over HTTP.
type LedgerHandler struct {
	deployments *deploy.Local
	auth        gin.HandlerFunc
	logger      *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler. auth guards the submit route.
func NewLedgerHandler(deployments *deploy.Local, auth gin.HandlerFunc, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{deployments: deployments, auth: auth, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledgers/:address")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/records", h.ListRecords)
		l.POST("/records", h.auth, h.Submit)
		l.GET("/records/:seq/confirmation", h.AwaitConfirmation)
	}
}

// service resolves :address, writing a 404 when it is not deployed.
func (h *LedgerHandler) service(c *gin.Context) (*ledger.Service, bool) {
	svc, err := h.deployments.Service(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ledger not found"})
		return nil, false
	}
	return svc, true
}

// Overview handles GET /ledgers/:address with the count, backlog and chain tip.
func (h *LedgerHandler) Overview(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	count, err := svc.TotalCount(ctx)
	if err != nil {
		h.logger.Error("ledger TotalCount", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}
	root, err := svc.Root(ctx)
	if err != nil {
		h.logger.Error("ledger Root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger root"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address": c.Param("address"),
		"count":   count,
		"pending": svc.Pending(),
		"root":    root,
	})
}

// Verify handles GET /ledgers/:address/verify by walking the hash chain.
func (h *LedgerHandler) Verify(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	if err := svc.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("ledger integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// ListRecords handles GET /ledgers/:address/records. Only confirmed records
// are listed, optionally filtered by ?author=.
func (h *LedgerHandler) ListRecords(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	seq, err := svc.Records(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger Records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list records"})
		return
	}

	records := slices.Collect(seq)
	if author := c.Query("author"); author != "" {
		records = slices.DeleteFunc(records, func(r ledger.Record) bool { return r.Author != author })
	}
	if records == nil {
		records = []ledger.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

type submitRequest struct {
	Message string `json:"message"`
}

// Submit handles POST /ledgers/:address/records. The authenticated actor is
// the author; responds 202 with the pending handle.
func (h *LedgerHandler) Submit(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	handle, err := svc.Submit(c.Request.Context(), ActorFromCtx(c), req.Message)
	if err != nil {
		var ve *ledger.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field})
			return
		}
		h.logger.Error("ledger Submit", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit record"})
		return
	}
	c.JSON(http.StatusAccepted, handle)
}

// AwaitConfirmation handles GET /ledgers/:address/records/:seq/confirmation.
// It long-polls for up to ?timeout= (default 10s). 200 carries the confirmed
// record, 202 means still pending and the caller should poll again.
func (h *LedgerHandler) AwaitConfirmation(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}
	seq, err := strconv.ParseUint(c.Param("seq"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seq must be a non-negative integer"})
		return
	}
	poll := defaultPollTimeout
	if v := c.Query("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "timeout must be a positive duration"})
			return
		}
		poll = min(d, maxPollTimeout)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), poll)
	defer cancel()

	handle := &ledger.PendingHandle{Seq: seq, TxHash: c.Query("tx_hash")}
	rec, err := svc.AwaitConfirmation(ctx, handle)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, rec)
	case errors.Is(err, ledger.ErrUnknownHandle):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrConfirmationTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusAccepted, gin.H{"seq": seq, "confirmed": false})
	default:
		// Caller went away.
		h.logger.Debug("confirmation wait abandoned", zap.Uint64("seq", seq), zap.Error(err))
	}
}

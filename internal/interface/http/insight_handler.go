package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// TriggerInsight starts an analysis for the subject. With wait=true the response
// carries the resolved snapshot instead of the Loading one.
func (h *Handler) TriggerInsight(c *gin.Context) {
	subject := c.Param("subject")
	var lookback time.Duration
	if raw := strings.TrimSpace(c.Query("lookback")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "lookback must be a non-negative duration", err))
			return
		}
		lookback = parsed
	}

	out, err := h.insightSvc.Analyze(c.Request.Context(), subject, lookback)
	if err != nil {
		abortWithError(c, domainError(err))
		return
	}
	if out.Skipped {
		c.JSON(http.StatusOK, out)
		return
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		snap, err := h.insightSvc.Wait(c.Request.Context(), subject)
		if err == nil {
			out.State = snap
			c.JSON(http.StatusOK, out)
			return
		}
		h.logger.Warn("wait for insight ended early", "subject", subject, "error", err)
		out.State = h.insightSvc.State(c.Request.Context(), subject)
	}
	c.JSON(http.StatusAccepted, out)
}

func (h *Handler) GetInsight(c *gin.Context) {
	c.JSON(http.StatusOK, h.insightSvc.State(c.Request.Context(), c.Param("subject")))
}

// RetryInsight re-issues the last request from a retryable Failed state.
func (h *Handler) RetryInsight(c *gin.Context) {
	snap, err := h.insightSvc.Retry(c.Request.Context(), c.Param("subject"))
	if err != nil {
		abortWithError(c, domainError(err))
		return
	}
	c.JSON(http.StatusAccepted, snap)
}

// CancelInsight abandons the in-flight request. Cancelling twice is harmless.
func (h *Handler) CancelInsight(c *gin.Context) {
	c.JSON(http.StatusOK, h.insightSvc.Cancel(c.Request.Context(), c.Param("subject")))
}

// StreamInsight pushes every snapshot as a Server-Sent Event until the client leaves.
// With cancelOnLeave=true a disconnect also cancels the in-flight request.
func (h *Handler) StreamInsight(c *gin.Context) {
	subject := c.Param("subject")
	cancelOnLeave, _ := strconv.ParseBool(c.Query("cancelOnLeave"))
	updates, unsubscribe, err := h.insightSvc.Subscribe(subject)
	if err != nil {
		abortWithError(c, domainError(err))
		return
	}
	defer unsubscribe()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "stream_unsupported", "streaming not supported", nil))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			if cancelOnLeave {
				snap := h.insightSvc.Cancel(context.Background(), subject)
				h.logger.Info("stream closed, insight cancelled", "subject", subject, "phase", snap.Phase)
			}
			return
		case snap, open := <-updates:
			if !open {
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				h.logger.Error("marshal snapshot failed", "subject", subject, "error", err)
				continue
			}
			c.Writer.Write([]byte("event: state\ndata: "))
			c.Writer.Write(payload)
			c.Writer.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

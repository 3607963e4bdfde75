package gateway

import (
	"io"
	"net/http"
	"time"

	httperr "github.com/ecogrid-lab/ecogrid-gateway/internal/core/errors"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/telemetry"
	"github.com/gin-gonic/gin"
)

const (
	eventSnapshot = "snapshot"
	eventPing     = "ping"
)

type siteURI struct {
	SiteID string `uri:"site_id" binding:"required"`
}

func (h *Handler) siteID(c *gin.Context) (string, bool) {
	var uri siteURI
	if err := c.ShouldBindUri(&uri); err != nil {
		respondBadRequest(c, httperr.HttpInvalidParamsError, "Invalid path parameters", err)
		return "", false
	}
	if h.live == nil {
		respondUnavailable(c, "Live site streams are not enabled")
		return "", false
	}
	return uri.SiteID, true
}

// HandleEMSState handles GET /v1/ems/:site_id/state
func (h *Handler) HandleEMSState(c *gin.Context) {
	siteID, ok := h.siteID(c)
	if !ok {
		return
	}
	acc, err := h.live.Accumulator(c.Request.Context(), siteID)
	if err != nil {
		respondError(c, err, "Failed to open site stream")
		return
	}
	c.JSON(http.StatusOK, acc.Snapshot())
}

// HandleEMSStream handles GET /v1/ems/:site_id/stream
//
// It sends the current aggregate as a "snapshot" event and then one more
// after every change. A slow reader only ever gets the newest aggregate;
// intermediate ones are skipped.
func (h *Handler) HandleEMSStream(c *gin.Context) {
	siteID, ok := h.siteID(c)
	if !ok {
		return
	}
	acc, release, err := h.live.Watch(c.Request.Context(), siteID)
	if err != nil {
		respondError(c, err, "Failed to open site stream")
		return
	}
	defer release()

	updates := make(chan telemetry.State, 1)
	unsubscribe := acc.Subscribe(func(s telemetry.State) {
		for {
			select {
			case updates <- s:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	c.SSEvent(eventSnapshot, acc.Snapshot())
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case s := <-updates:
			c.SSEvent(eventSnapshot, s)
			return true
		case t := <-keepAlive.C:
			c.SSEvent(eventPing, t.UTC().Format(time.RFC3339))
			return true
		}
	})
}

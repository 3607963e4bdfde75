package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/apiclient"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/binding"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/clock"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/devicefeed"
	"github.com/gin-gonic/gin"
)

// OverviewOptions tunes the per-site overview bindings.
type OverviewOptions struct {
	// Idle is how long an overview stays bound without requests.
	Idle time.Duration
	// Refresh reloads a bound overview this often. Zero disables it.
	Refresh time.Duration
	Clock   clock.Clock
	Binding []binding.Option
}

// NewOverviewWatchers binds one site overview per requested site. Every
// overview that loads seeds tracker, so device readings can be merged
// into it until the next load.
func NewOverviewWatchers(api DataAPI, tracker *devicefeed.Tracker, opts OverviewOptions) *binding.Watchers[apiclient.SiteOverview] {
	factory := func(key string) *binding.Binding[apiclient.SiteOverview] {
		id, _ := strconv.ParseInt(key, 10, 64)
		bopts := []binding.Option{
			binding.WithName("site-overview:" + key),
			binding.WithRetryable(apiclient.IsRetryable),
		}
		if opts.Clock != nil {
			bopts = append(bopts, binding.WithClock(opts.Clock))
		}
		if opts.Refresh > 0 {
			bopts = append(bopts, binding.WithRefreshInterval(opts.Refresh))
		}
		bopts = append(bopts, opts.Binding...)

		b := binding.New(func(ctx context.Context) (apiclient.SiteOverview, error) {
			return api.SiteOverview(ctx, id)
		}, bopts...)
		if tracker != nil {
			b.OnChange(func(v binding.View[apiclient.SiteOverview]) {
				if v.Status == binding.StatusReady {
					tracker.Seed(v.Data)
				}
			})
		}
		return b
	}
	return binding.NewWatchers(factory, opts.Idle, opts.Clock)
}

type overviewResponse struct {
	Status    binding.Status          `json:"status"`
	Data      *apiclient.SiteOverview `json:"data,omitempty"`
	Error     string                  `json:"error,omitempty"`
	UpdatedAt time.Time               `json:"updatedAt,omitzero"`
	Attempt   int                     `json:"attempt"`
}

// HandleSiteOverview handles GET /v1/sites/:id/overview
//
// The response mirrors the site's binding: 200 when ready, 202 while a
// load is still running after the wait bound, and the mapped error status
// when it failed. A 202 during a reload still carries the previous data.
// Device readings received since the last load are merged into the data.
func (h *Handler) HandleSiteOverview(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	if h.overviews == nil {
		respondUnavailable(c, "Site overviews are not enabled")
		return
	}

	ctx := c.Request.Context()
	b := h.overviews.Get(ctx, siteKey(id))
	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		b.Refetch(ctx)
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.overviewWait)
	view, err := b.Await(waitCtx)
	cancel()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		respondError(c, err, "Site overview request aborted")
		return
	}

	resp := overviewResponse{
		Status:    view.Status,
		UpdatedAt: view.UpdatedAt,
		Attempt:   view.Attempt,
	}
	switch view.Status {
	case binding.StatusReady:
		resp.Data = h.mergeReadings(id, view.Data)
		c.JSON(http.StatusOK, resp)
	case binding.StatusFailed:
		status := http.StatusBadGateway
		if view.Err != nil {
			resp.Error = view.Err.Error()
			status, _ = classify(view.Err)
		}
		c.JSON(status, resp)
	default:
		// A reload keeps the data of the last successful load.
		if !view.UpdatedAt.IsZero() {
			resp.Data = h.mergeReadings(id, view.Data)
		}
		c.JSON(http.StatusAccepted, resp)
	}
}

func (h *Handler) mergeReadings(id int64, data apiclient.SiteOverview) *apiclient.SiteOverview {
	if h.tracker != nil {
		if live, ok := h.tracker.Overview(id); ok {
			data = live
		} else {
			h.tracker.Seed(data)
		}
	}
	return &data
}

package store

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/internal/apiclient"
	"github.com/pitabwire/shopdesk/model"
)

// Dashboard holds the headline metrics shown on the dashboard page.
type Dashboard struct {
	client *apiclient.Client
	logger *zap.Logger
	ops    tracker

	mu   sync.Mutex
	data model.AnalyticsData
}

// NewDashboard creates the dashboard store.
func NewDashboard(d Deps) *Dashboard {
	return &Dashboard{client: d.Client, logger: d.logger().Named("dashboard")}
}

// Fetch loads the dashboard metrics. On failure the previous metrics are
// kept.
func (d *Dashboard) Fetch(ctx context.Context) (model.AnalyticsData, error) {
	d.ops.begin()
	env, err := d.client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/dashboard/metrics"})
	if err == nil {
		var data model.AnalyticsData
		if err = env.DecodeData(&data); err == nil {
			d.mu.Lock()
			d.data = data
			d.mu.Unlock()
			return data, d.ops.end(nil)
		}
	}
	d.logger.Warn("dashboard metrics unavailable", zap.Error(err))
	ee := *model.AsEnvelope(err)
	ee.Message = "Failed to fetch analytics data."
	return d.Data(), d.ops.end(&ee)
}

// Data returns the last loaded metrics.
func (d *Dashboard) Data() model.AnalyticsData {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data
}

// Status returns the loading flag and last error.
func (d *Dashboard) Status() OpStatus { return d.ops.status() }

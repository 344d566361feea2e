package workers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/queue"
)

// Sync job types.
const (
	JobSyncMarketData   = "sync-market-data"
	JobSyncPropertiesEx = "sync-properties-external"
	JobSyncTenants      = "sync-tenants"
	JobSyncFinancial    = "sync-financial"
	JobSyncIntegration  = "sync-integration"
	JobSyncFull         = "sync-full"
	JobValidateData     = "validate-data"
)

// Default market data providers queried when a sync job names none.
var defaultMarketSources = []string{"zillow", "realtor", "rentometer"}

// Components a full-system sweep covers when a job names none.
var defaultSyncComponents = []string{"market", "properties", "tenants", "financial", "integrations"}

// SyncDeps are the external system clients the sync worker reconciles
// against.
type SyncDeps struct {
	Market       MarketDataClient
	Listings     ExternalListingClient
	Tenants      TenantDirectory
	Ledger       LedgerClient
	Validator    DataValidator
	Store        PropertyStore
	Integrations IntegrationRegistry
	// Publisher receives sync completion triggers; optional.
	Publisher queue.Publisher
}

// SyncWorker processes the sync queue: market data pulls, external listing
// reconciliation, tenant and financial sync, and data validation sweeps.
type SyncWorker struct {
	queue  *queue.Worker
	deps   SyncDeps
	logger automation.Logger

	mu             sync.Mutex
	lastMarketSync time.Time
}

// NewSyncWorker registers the sync job handlers on a fresh queue worker
// over store.
func NewSyncWorker(store queue.Store, deps SyncDeps, logger automation.Logger, opts ...queue.Option) (*SyncWorker, error) {
	if logger == nil {
		logger = automation.NewFmtLogger(nil)
	}
	opts = append([]queue.Option{queue.WithLogger(logger)}, opts...)
	sw := &SyncWorker{
		queue:  queue.NewWorker("sync-processing", store, opts...),
		deps:   deps,
		logger: logger,
	}

	regs := []struct {
		jobType     string
		handler     queue.HandlerFunc
		concurrency int
	}{
		{JobSyncMarketData, sw.syncMarketData, 2},
		{JobSyncPropertiesEx, sw.syncPropertiesExternal, 3},
		{JobSyncTenants, sw.syncTenants, 2},
		{JobSyncFinancial, sw.syncFinancial, 1},
		{JobSyncIntegration, sw.syncIntegrations, 2},
		{JobSyncFull, sw.syncFull, 1},
		{JobValidateData, sw.validateData, 1},
	}
	for _, r := range regs {
		if err := sw.queue.RegisterHandler(r.jobType, r.handler, r.concurrency); err != nil {
			return nil, err
		}
	}
	return sw, nil
}

// Queue exposes the underlying worker for lifecycle and stats calls.
func (w *SyncWorker) Queue() *queue.Worker { return w.queue }

func (w *SyncWorker) Start(ctx context.Context) error { return w.queue.Start(ctx) }
func (w *SyncWorker) Stop()                           { w.queue.Stop() }

// AddMarketDataJob enqueues a market data pull from the given providers.
func (w *SyncWorker) AddMarketDataJob(ctx context.Context, sources []string, forceRefresh bool, rc automation.RequestContext) (*queue.Job, error) {
	list := make([]any, 0, len(sources))
	for _, s := range sources {
		list = append(list, s)
	}
	return w.queue.AddJob(ctx, JobSyncMarketData, automation.Payload{
		"sources":      list,
		"forceRefresh": forceRefresh,
	}, queue.JobOptions{
		ID:       fmt.Sprintf("market_sync_%d", time.Now().UnixMilli()),
		Priority: automation.PriorityCritical,
		Context:  rc,
	})
}

// AddExternalPropertySyncJob enqueues a pull of listing records from the
// external platform. Empty propertyID reconciles everything.
func (w *SyncWorker) AddExternalPropertySyncJob(ctx context.Context, propertyID string, rc automation.RequestContext) (*queue.Job, error) {
	key := propertyID
	if key == "" {
		key = "all"
	}
	return w.queue.AddJob(ctx, JobSyncPropertiesEx, automation.Payload{
		"propertyId": propertyID,
	}, queue.JobOptions{
		ID:       fmt.Sprintf("property_ext_sync_%s_%d", key, time.Now().UnixMilli()),
		Priority: automation.PriorityHigh,
		Context:  rc,
	})
}

// AddTenantSyncJob enqueues tenant reconciliation since the given window.
func (w *SyncWorker) AddTenantSyncJob(ctx context.Context, sinceHours int, rc automation.RequestContext) (*queue.Job, error) {
	return w.queue.AddJob(ctx, JobSyncTenants, automation.Payload{
		"sinceHours": sinceHours,
	}, queue.JobOptions{
		ID:       fmt.Sprintf("tenant_sync_%d", time.Now().UnixMilli()),
		Priority: automation.PriorityNormal,
		Context:  rc,
	})
}

// AddFinancialSyncJob enqueues ledger reconciliation since the given window.
func (w *SyncWorker) AddFinancialSyncJob(ctx context.Context, sinceHours int, rc automation.RequestContext) (*queue.Job, error) {
	return w.queue.AddJob(ctx, JobSyncFinancial, automation.Payload{
		"sinceHours": sinceHours,
	}, queue.JobOptions{
		ID:       fmt.Sprintf("financial_sync_%d", time.Now().UnixMilli()),
		Priority: automation.PriorityLow,
		Context:  rc,
	})
}

// AddIntegrationSyncJob enqueues a sync pass for one integration, or every
// configured integration when integrationID is empty.
func (w *SyncWorker) AddIntegrationSyncJob(ctx context.Context, integrationID, syncType string, rc automation.RequestContext) (*queue.Job, error) {
	key := integrationID
	if key == "" {
		key = "all"
	}
	return w.queue.AddJob(ctx, JobSyncIntegration, automation.Payload{
		"integrationId": integrationID,
		"syncType":      syncType,
	}, queue.JobOptions{
		ID:       fmt.Sprintf("integration_sync_%s_%d", key, time.Now().UnixMilli()),
		Priority: automation.PriorityHigh,
		Context:  rc,
	})
}

// AddFullSyncJob enqueues a sweep across every sync component. Empty
// components covers them all.
func (w *SyncWorker) AddFullSyncJob(ctx context.Context, components []string, rc automation.RequestContext) (*queue.Job, error) {
	list := make([]any, 0, len(components))
	for _, c := range components {
		list = append(list, c)
	}
	return w.queue.AddJob(ctx, JobSyncFull, automation.Payload{
		"components": list,
	}, queue.JobOptions{
		ID:       fmt.Sprintf("full_sync_%d", time.Now().UnixMilli()),
		Priority: automation.PriorityNormal,
		Context:  rc,
	})
}

// AddDataValidationJob enqueues a validation sweep over the named scopes.
func (w *SyncWorker) AddDataValidationJob(ctx context.Context, scopes []string, rc automation.RequestContext) (*queue.Job, error) {
	list := make([]any, 0, len(scopes))
	for _, s := range scopes {
		list = append(list, s)
	}
	return w.queue.AddJob(ctx, JobValidateData, automation.Payload{
		"scopes": list,
	}, queue.JobOptions{
		ID:       fmt.Sprintf("validate_%d", time.Now().UnixMilli()),
		Priority: automation.PriorityBulk,
		Context:  rc,
	})
}

func payloadStrings(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func payloadHours(p automation.Payload, key string, fallback time.Duration) time.Duration {
	hours, ok := p.Int(key)
	if !ok || hours <= 0 {
		return fallback
	}
	return time.Duration(hours) * time.Hour
}

func (w *SyncWorker) syncMarketData(ctx context.Context, job *queue.Job) error {
	sources := payloadStrings(job.Payload["sources"])
	if len(sources) == 0 {
		sources = defaultMarketSources
	}
	forceRefresh, _ := job.Payload["forceRefresh"].(bool)

	// Providers rate-limit aggressively; at most one full pull per six
	// hours unless forced.
	w.mu.Lock()
	recent := !w.lastMarketSync.IsZero() && time.Since(w.lastMarketSync) < 6*time.Hour
	w.mu.Unlock()
	if recent && !forceRefresh {
		w.logger.Info("market data synced recently, skipping")
		return nil
	}

	w.logger.Info("syncing market data from %s", strings.Join(sources, ", "))

	succeeded := 0
	stats := automation.Payload{}
	for _, source := range sources {
		data, err := w.deps.Market.FetchMarketData(ctx, source)
		if err != nil {
			w.logger.Error("market data sync from %s failed: %v", source, err)
			continue
		}
		stats[source] = map[string]any(data)
		succeeded++
	}
	if succeeded == 0 {
		return fmt.Errorf("sync-market-data: all %d sources failed", len(sources))
	}

	w.mu.Lock()
	w.lastMarketSync = time.Now().UTC()
	w.mu.Unlock()

	w.publish(ctx, "marketdata.sync_completed", automation.Payload{
		"sources":    len(sources),
		"succeeded":  succeeded,
		"statistics": map[string]any(stats),
	}, job.Context)
	return nil
}

func (w *SyncWorker) syncPropertiesExternal(ctx context.Context, job *queue.Job) error {
	propertyID, _ := job.Payload.String("propertyId")

	records, err := w.deps.Listings.PullProperties(ctx)
	if err != nil {
		return fmt.Errorf("sync-properties-external: pull listings: %w", err)
	}

	updated := 0
	for _, record := range records {
		id, _ := record.String("propertyId")
		if id == "" {
			continue
		}
		if propertyID != "" && id != propertyID {
			continue
		}
		if err := w.deps.Store.UpdateProperty(ctx, id, record); err != nil {
			return fmt.Errorf("sync-properties-external: update property %s: %w", id, err)
		}
		updated++
	}
	w.logger.Info("reconciled %d external property records", updated)
	return nil
}

func (w *SyncWorker) syncTenants(ctx context.Context, job *queue.Job) error {
	since := time.Now().UTC().Add(-payloadHours(job.Payload, "sinceHours", 24*time.Hour))
	updated, err := w.deps.Tenants.SyncTenants(ctx, since)
	if err != nil {
		return fmt.Errorf("sync-tenants: %w", err)
	}
	w.logger.Info("synced %d tenant records", updated)
	return nil
}

func (w *SyncWorker) syncFinancial(ctx context.Context, job *queue.Job) error {
	since := time.Now().UTC().Add(-payloadHours(job.Payload, "sinceHours", 24*time.Hour))
	synced, err := w.deps.Ledger.SyncTransactions(ctx, since)
	if err != nil {
		return fmt.Errorf("sync-financial: %w", err)
	}
	w.logger.Info("synced %d financial transactions", synced)
	return nil
}

// syncIntegrations runs one sync pass per configured integration, or one
// named integration when the job carries an integrationId. Every pass
// publishes lifecycle triggers so workflows can react to the outcome.
func (w *SyncWorker) syncIntegrations(ctx context.Context, job *queue.Job) error {
	if w.deps.Integrations == nil {
		w.logger.Info("no integration registry configured, skipping")
		return nil
	}
	integrationID, _ := job.Payload.String("integrationId")
	syncType, _ := job.Payload.String("syncType")
	if syncType == "" {
		syncType = "full"
	}

	list, err := w.deps.Integrations.Integrations(ctx)
	if err != nil {
		return fmt.Errorf("sync-integration: list integrations: %w", err)
	}
	targets := list
	if integrationID != "" {
		targets = nil
		for _, integ := range list {
			if integ.ID == integrationID {
				targets = append(targets, integ)
			}
		}
		if len(targets) == 0 {
			return fmt.Errorf("sync-integration: unknown integration %s", integrationID)
		}
	}
	if len(targets) == 0 {
		w.logger.Info("no integrations configured, skipping")
		return nil
	}

	failed := 0
	for _, integ := range targets {
		start := time.Now()
		w.publish(ctx, "integration.sync_started", automation.Payload{
			"integrationId": integ.ID,
			"name":          integ.Name,
			"syncType":      syncType,
		}, job.Context)

		records, serr := w.deps.Integrations.SyncIntegration(ctx, integ.ID, syncType)
		if serr != nil {
			failed++
			w.logger.Error("integration %s sync failed: %v", integ.ID, serr)
			w.publish(ctx, "integration.sync_failed", automation.Payload{
				"integrationId": integ.ID,
				"error":         serr.Error(),
			}, job.Context)
			continue
		}
		w.logger.Info("integration %s synced %d records", integ.ID, records)
		w.publish(ctx, "integration.sync_completed", automation.Payload{
			"integrationId":    integ.ID,
			"recordsProcessed": records,
			"durationMs":       time.Since(start).Milliseconds(),
		}, job.Context)
	}
	if failed == len(targets) {
		return fmt.Errorf("sync-integration: all %d integrations failed", len(targets))
	}
	return nil
}

// syncFull sweeps every sync component in order. Component failures are
// counted and reported; the job only fails when every component failed.
func (w *SyncWorker) syncFull(ctx context.Context, job *queue.Job) error {
	components := payloadStrings(job.Payload["components"])
	if len(components) == 0 {
		components = defaultSyncComponents
	}

	start := time.Now()
	failed := 0
	for _, component := range components {
		sub := &queue.Job{Payload: automation.Payload{}, Context: job.Context}
		var err error
		switch component {
		case "market":
			// The sweep overrides the market throttle.
			sub.Payload["forceRefresh"] = true
			err = w.syncMarketData(ctx, sub)
		case "properties":
			err = w.syncPropertiesExternal(ctx, sub)
		case "tenants":
			err = w.syncTenants(ctx, sub)
		case "financial":
			err = w.syncFinancial(ctx, sub)
		case "integrations":
			err = w.syncIntegrations(ctx, sub)
		default:
			err = fmt.Errorf("unknown component %q", component)
		}
		if err != nil {
			w.logger.Error("full sync: component %s failed: %v", component, err)
			failed++
		}
	}

	if failed == len(components) {
		return fmt.Errorf("sync-full: all %d components failed", len(components))
	}
	w.publish(ctx, "system.full_sync_completed", automation.Payload{
		"components": len(components),
		"failed":     failed,
		"durationMs": time.Since(start).Milliseconds(),
	}, job.Context)
	return nil
}

func (w *SyncWorker) publish(ctx context.Context, name string, payload automation.Payload, rc automation.RequestContext) {
	if w.deps.Publisher == nil {
		return
	}
	w.deps.Publisher.Publish(ctx, name, payload, rc)
}

func (w *SyncWorker) validateData(ctx context.Context, job *queue.Job) error {
	scopes := payloadStrings(job.Payload["scopes"])
	if len(scopes) == 0 {
		scopes = []string{"all"}
	}

	totalChecked, totalRepaired := 0, 0
	for _, scope := range scopes {
		checked, repaired, err := w.deps.Validator.ValidateAndRepair(ctx, scope)
		if err != nil {
			return fmt.Errorf("validate-data: scope %s: %w", scope, err)
		}
		totalChecked += checked
		totalRepaired += repaired
	}
	w.logger.Info("data validation checked %d records, repaired %d", totalChecked, totalRepaired)

	w.publish(ctx, "system.data_validated", automation.Payload{
		"scopes":   len(scopes),
		"checked":  totalChecked,
		"repaired": totalRepaired,
	}, job.Context)
	return nil
}

package workers

import (
	"context"
	"fmt"
	"strings"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/queue"
)

// Property job types.
const (
	JobProcessUpload  = "process-upload"
	JobProcessImages  = "process-images"
	JobGeocodeAddress = "geocode-address"
	JobEnrichData     = "enrich-data"
	JobUpdateWebsite  = "update-website"
	JobSyncExternal   = "sync-external"
	JobBulkImport     = "bulk-import"
	JobCleanupData    = "cleanup-data"
)

// PropertyDeps are the collaborators the property worker orchestrates.
type PropertyDeps struct {
	Store     PropertyStore
	Images    ImageProcessor
	Geocoder  Geocoder
	Publisher ListingPublisher
	External  ExternalListingClient
}

// PropertyWorker processes the property queue: upload intake, image
// processing, geocoding, data enrichment, website publication, and external
// listing sync.
type PropertyWorker struct {
	queue  *queue.Worker
	deps   PropertyDeps
	logger automation.Logger
}

// NewPropertyWorker registers the property job handlers on a fresh queue
// worker over store.
func NewPropertyWorker(store queue.Store, deps PropertyDeps, logger automation.Logger, opts ...queue.Option) (*PropertyWorker, error) {
	if logger == nil {
		logger = automation.NewFmtLogger(nil)
	}
	opts = append([]queue.Option{queue.WithLogger(logger)}, opts...)
	pw := &PropertyWorker{
		queue:  queue.NewWorker("property-processing", store, opts...),
		deps:   deps,
		logger: logger,
	}

	regs := []struct {
		jobType     string
		handler     queue.HandlerFunc
		concurrency int
	}{
		{JobProcessUpload, pw.processUpload, 5},
		{JobProcessImages, pw.processImages, 10},
		{JobGeocodeAddress, pw.geocodeAddress, 3},
		{JobEnrichData, pw.enrichData, 3},
		{JobUpdateWebsite, pw.updateWebsite, 2},
		{JobSyncExternal, pw.syncExternal, 2},
		{JobBulkImport, pw.bulkImport, 1},
		{JobCleanupData, pw.cleanupData, 1},
	}
	for _, r := range regs {
		if err := pw.queue.RegisterHandler(r.jobType, r.handler, r.concurrency); err != nil {
			return nil, err
		}
	}
	return pw, nil
}

// Queue exposes the underlying worker for lifecycle and stats calls.
func (w *PropertyWorker) Queue() *queue.Worker { return w.queue }

func (w *PropertyWorker) Start(ctx context.Context) error { return w.queue.Start(ctx) }
func (w *PropertyWorker) Stop()                           { w.queue.Stop() }

// AddUploadJob enqueues post-upload processing for a property. The ID keys
// on the property and upload batch so a re-submitted upload is a no-op.
func (w *PropertyWorker) AddUploadJob(ctx context.Context, propertyID, uploadBatch string, files []FileRef, rc automation.RequestContext) (*queue.Job, error) {
	fileList := make([]any, 0, len(files))
	for _, f := range files {
		fileList = append(fileList, map[string]any{
			"filename": f.Filename,
			"url":      f.URL,
			"mimeType": f.MimeType,
			"size":     f.Size,
		})
	}
	return w.queue.AddJob(ctx, JobProcessUpload, automation.Payload{
		"propertyId": propertyID,
		"files":      fileList,
	}, queue.JobOptions{
		ID:       fmt.Sprintf("upload_%s_%s", propertyID, uploadBatch),
		Priority: automation.PriorityCritical,
		Context:  rc,
	})
}

// AddImageJob enqueues image processing for a property.
func (w *PropertyWorker) AddImageJob(ctx context.Context, propertyID string, files []FileRef, rc automation.RequestContext) (*queue.Job, error) {
	fileList := make([]any, 0, len(files))
	for _, f := range files {
		fileList = append(fileList, map[string]any{
			"filename": f.Filename,
			"url":      f.URL,
			"mimeType": f.MimeType,
			"size":     f.Size,
		})
	}
	return w.queue.AddJob(ctx, JobProcessImages, automation.Payload{
		"propertyId": propertyID,
		"images":     fileList,
	}, queue.JobOptions{
		Priority: automation.PriorityHigh,
		Context:  rc,
	})
}

// AddGeocodeJob enqueues address geocoding for a property.
func (w *PropertyWorker) AddGeocodeJob(ctx context.Context, propertyID, address string, rc automation.RequestContext) (*queue.Job, error) {
	return w.queue.AddJob(ctx, JobGeocodeAddress, automation.Payload{
		"propertyId": propertyID,
		"address":    address,
	}, queue.JobOptions{
		ID:       "geocode_" + propertyID,
		Priority: automation.PriorityNormal,
		Context:  rc,
	})
}

// AddEnrichJob enqueues market-data enrichment for a property.
func (w *PropertyWorker) AddEnrichJob(ctx context.Context, propertyID string, rc automation.RequestContext) (*queue.Job, error) {
	return w.queue.AddJob(ctx, JobEnrichData, automation.Payload{
		"propertyId": propertyID,
	}, queue.JobOptions{
		ID:       "enrich_" + propertyID,
		Priority: automation.PriorityLow,
		Context:  rc,
	})
}

// AddWebsiteJob enqueues a publish or unpublish of the property listing.
func (w *PropertyWorker) AddWebsiteJob(ctx context.Context, propertyID, action string, rc automation.RequestContext) (*queue.Job, error) {
	return w.queue.AddJob(ctx, JobUpdateWebsite, automation.Payload{
		"propertyId": propertyID,
		"action":     action,
	}, queue.JobOptions{
		ID:       "website_" + propertyID,
		Priority: automation.PriorityLow,
		Context:  rc,
	})
}

// AddExternalSyncJob enqueues a push of the property record to the external
// listing platform. Empty propertyID syncs every modified property.
func (w *PropertyWorker) AddExternalSyncJob(ctx context.Context, propertyID string, rc automation.RequestContext) (*queue.Job, error) {
	key := propertyID
	if key == "" {
		key = "all"
	}
	return w.queue.AddJob(ctx, JobSyncExternal, automation.Payload{
		"propertyId": propertyID,
	}, queue.JobOptions{
		ID:       fmt.Sprintf("sync_%s_%d", key, time.Now().UnixMilli()),
		Priority: automation.PriorityBulk,
		Context:  rc,
	})
}

// BulkImportOptions control how a bulk import treats each record.
type BulkImportOptions struct {
	UpdateExisting   bool
	SkipDuplicates   bool
	ValidateData     bool
	GeocodeAddresses bool
}

// DefaultBulkImportOptions update existing records, skip duplicates when
// updating is off, validate every record, and geocode new addresses.
func DefaultBulkImportOptions() BulkImportOptions {
	return BulkImportOptions{
		UpdateExisting:   true,
		SkipDuplicates:   true,
		ValidateData:     true,
		GeocodeAddresses: true,
	}
}

// AddBulkImportJob enqueues a batch create-or-update of property records.
func (w *PropertyWorker) AddBulkImportJob(ctx context.Context, companyID string, records []automation.Payload, opts BulkImportOptions, rc automation.RequestContext) (*queue.Job, error) {
	list := make([]any, 0, len(records))
	for _, r := range records {
		list = append(list, map[string]any(r))
	}
	return w.queue.AddJob(ctx, JobBulkImport, automation.Payload{
		"companyId": companyID,
		"records":   list,
		"options": map[string]any{
			"updateExisting":   opts.UpdateExisting,
			"skipDuplicates":   opts.SkipDuplicates,
			"validateData":     opts.ValidateData,
			"geocodeAddresses": opts.GeocodeAddresses,
		},
	}, queue.JobOptions{
		ID:       fmt.Sprintf("bulk_import_%d", time.Now().UnixMilli()),
		Priority: automation.PriorityBulk,
		Context:  rc,
	})
}

// AddCleanupJob enqueues an orphaned-record sweep.
func (w *PropertyWorker) AddCleanupJob(ctx context.Context, daysOld int, rc automation.RequestContext) (*queue.Job, error) {
	return w.queue.AddJob(ctx, JobCleanupData, automation.Payload{
		"daysOld": daysOld,
	}, queue.JobOptions{
		Priority: automation.PriorityBulk,
		Context:  rc,
	})
}

func payloadFiles(raw any) []FileRef {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]FileRef, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		p := automation.Payload(m)
		filename, _ := p.String("filename")
		url, _ := p.String("url")
		mimeType, _ := p.String("mimeType")
		size, _ := p.Int("size")
		out = append(out, FileRef{
			Filename: filename,
			URL:      url,
			MimeType: mimeType,
			Size:     int64(size),
		})
	}
	return out
}

func (w *PropertyWorker) processUpload(ctx context.Context, job *queue.Job) error {
	propertyID, _ := job.Payload.String("propertyId")
	if propertyID == "" {
		return fmt.Errorf("process-upload: propertyId is required")
	}
	files := payloadFiles(job.Payload["files"])

	w.logger.Info("processing upload for property %s (%d files)", propertyID, len(files))

	property, err := w.deps.Store.Property(ctx, propertyID)
	if err != nil {
		return fmt.Errorf("process-upload: load property %s: %w", propertyID, err)
	}
	if property == nil {
		return fmt.Errorf("process-upload: property %s not found", propertyID)
	}

	processed := 0
	for _, f := range files {
		if !strings.HasPrefix(f.MimeType, "image/") {
			continue
		}
		img, perr := w.deps.Images.Process(ctx, propertyID, f, defaultImageOptions())
		if perr != nil {
			w.logger.Warn("process-upload: image %s failed: %v", f.Filename, perr)
			continue
		}
		if serr := w.deps.Store.SaveImage(ctx, propertyID, img); serr != nil {
			return fmt.Errorf("process-upload: save image %s: %w", f.Filename, serr)
		}
		processed++
	}

	if err := w.deps.Store.UpdateProperty(ctx, propertyID, automation.Payload{
		"status":            "pending_processing",
		"processingStarted": time.Now().UTC(),
		"imageCount":        processed,
	}); err != nil {
		return fmt.Errorf("process-upload: update property %s: %w", propertyID, err)
	}
	return nil
}

func defaultImageOptions() ImageOptions {
	return ImageOptions{
		MaxWidth:        1200,
		MaxHeight:       800,
		ThumbnailWidth:  400,
		ThumbnailHeight: 300,
		Quality:         85,
	}
}

func (w *PropertyWorker) processImages(ctx context.Context, job *queue.Job) error {
	propertyID, _ := job.Payload.String("propertyId")
	if propertyID == "" {
		return fmt.Errorf("process-images: propertyId is required")
	}
	images := payloadFiles(job.Payload["images"])
	if len(images) == 0 {
		return nil
	}

	processed := 0
	for _, f := range images {
		img, perr := w.deps.Images.Process(ctx, propertyID, f, defaultImageOptions())
		if perr != nil {
			w.logger.Warn("process-images: image %s failed: %v", f.Filename, perr)
			continue
		}
		if serr := w.deps.Store.SaveImage(ctx, propertyID, img); serr != nil {
			return fmt.Errorf("process-images: save image %s: %w", f.Filename, serr)
		}
		processed++
	}
	if processed == 0 {
		return fmt.Errorf("process-images: all %d images failed for property %s", len(images), propertyID)
	}

	if err := w.deps.Store.UpdateProperty(ctx, propertyID, automation.Payload{
		"imageCount": processed,
		"hasImages":  true,
	}); err != nil {
		return fmt.Errorf("process-images: update property %s: %w", propertyID, err)
	}
	w.logger.Info("processed %d of %d images for property %s", processed, len(images), propertyID)
	return nil
}

func (w *PropertyWorker) geocodeAddress(ctx context.Context, job *queue.Job) error {
	propertyID, _ := job.Payload.String("propertyId")
	if propertyID == "" {
		return fmt.Errorf("geocode-address: propertyId is required")
	}
	address, _ := job.Payload.String("address")
	if address == "" {
		property, err := w.deps.Store.Property(ctx, propertyID)
		if err != nil {
			return fmt.Errorf("geocode-address: load property %s: %w", propertyID, err)
		}
		if property == nil {
			return fmt.Errorf("geocode-address: property %s not found", propertyID)
		}
		address, _ = property.String("address")
	}
	if address == "" {
		return fmt.Errorf("geocode-address: property %s has no address", propertyID)
	}

	lat, lng, err := w.deps.Geocoder.Geocode(ctx, address)
	if err != nil {
		if uerr := w.deps.Store.UpdateProperty(ctx, propertyID, automation.Payload{
			"geocodingStatus": "failed",
			"geocodingError":  err.Error(),
		}); uerr != nil {
			w.logger.Error("geocode-address: record failure on property %s: %v", propertyID, uerr)
		}
		return fmt.Errorf("geocode-address: property %s: %w", propertyID, err)
	}

	if err := w.deps.Store.UpdateProperty(ctx, propertyID, automation.Payload{
		"latitude":        lat,
		"longitude":       lng,
		"geocodedAt":      time.Now().UTC(),
		"geocodingStatus": "success",
	}); err != nil {
		return fmt.Errorf("geocode-address: update property %s: %w", propertyID, err)
	}
	w.logger.Info("geocoded property %s to (%f, %f)", propertyID, lat, lng)
	return nil
}

func (w *PropertyWorker) enrichData(ctx context.Context, job *queue.Job) error {
	propertyID, _ := job.Payload.String("propertyId")
	if propertyID == "" {
		return fmt.Errorf("enrich-data: propertyId is required")
	}

	property, err := w.deps.Store.Property(ctx, propertyID)
	if err != nil {
		return fmt.Errorf("enrich-data: load property %s: %w", propertyID, err)
	}
	if property == nil {
		return fmt.Errorf("enrich-data: property %s not found", propertyID)
	}

	fields := automation.Payload{"enrichedAt": time.Now().UTC()}

	// Rental yield only computes when both figures are on record.
	price, hasPrice := property.Float("purchasePrice")
	rent, hasRent := property.Float("monthlyRent")
	if hasPrice && hasRent && price > 0 {
		fields["rentalYield"] = (rent * 12 / price) * 100
	}
	if sqft, ok := property.Float("squareFeet"); ok && sqft > 0 && hasRent {
		fields["rentPerSqft"] = rent / sqft
	}

	if err := w.deps.Store.UpdateProperty(ctx, propertyID, fields); err != nil {
		return fmt.Errorf("enrich-data: update property %s: %w", propertyID, err)
	}
	w.logger.Info("enriched property %s with %d fields", propertyID, len(fields))
	return nil
}

func (w *PropertyWorker) updateWebsite(ctx context.Context, job *queue.Job) error {
	propertyID, _ := job.Payload.String("propertyId")
	if propertyID == "" {
		return fmt.Errorf("update-website: propertyId is required")
	}
	action, _ := job.Payload.String("action")

	if action == "unpublish" {
		if err := w.deps.Publisher.UnpublishListing(ctx, propertyID); err != nil {
			return fmt.Errorf("update-website: unpublish property %s: %w", propertyID, err)
		}
		w.logger.Info("unpublished listing for property %s", propertyID)
		return nil
	}

	property, err := w.deps.Store.Property(ctx, propertyID)
	if err != nil {
		return fmt.Errorf("update-website: load property %s: %w", propertyID, err)
	}
	if property == nil {
		return fmt.Errorf("update-website: property %s not found", propertyID)
	}
	if err := w.deps.Publisher.PublishListing(ctx, propertyID, property); err != nil {
		return fmt.Errorf("update-website: publish property %s: %w", propertyID, err)
	}
	w.logger.Info("published listing for property %s", propertyID)
	return nil
}

func (w *PropertyWorker) syncExternal(ctx context.Context, job *queue.Job) error {
	propertyID, _ := job.Payload.String("propertyId")

	ids := []string{propertyID}
	if propertyID == "" {
		modified, err := w.deps.Store.PropertiesModifiedSince(ctx, time.Now().UTC().Add(-24*time.Hour))
		if err != nil {
			return fmt.Errorf("sync-external: list modified properties: %w", err)
		}
		ids = modified
	}

	synced := 0
	for _, id := range ids {
		property, err := w.deps.Store.Property(ctx, id)
		if err != nil {
			return fmt.Errorf("sync-external: load property %s: %w", id, err)
		}
		if property == nil {
			continue
		}
		if err := w.deps.External.PushProperty(ctx, id, property); err != nil {
			return fmt.Errorf("sync-external: push property %s: %w", id, err)
		}
		synced++
	}
	w.logger.Info("synced %d properties to external platform", synced)
	return nil
}

func payloadRecords(raw any) []automation.Payload {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]automation.Payload, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, automation.Payload(m))
		}
	}
	return out
}

func bulkOptions(raw any) BulkImportOptions {
	m, ok := raw.(map[string]any)
	if !ok {
		return DefaultBulkImportOptions()
	}
	p := automation.Payload(m)
	opts := DefaultBulkImportOptions()
	if v, ok := p["updateExisting"].(bool); ok {
		opts.UpdateExisting = v
	}
	if v, ok := p["skipDuplicates"].(bool); ok {
		opts.SkipDuplicates = v
	}
	if v, ok := p["validateData"].(bool); ok {
		opts.ValidateData = v
	}
	if v, ok := p["geocodeAddresses"].(bool); ok {
		opts.GeocodeAddresses = v
	}
	return opts
}

// bulkImport creates or updates one property per record. Invalid records
// are skipped and counted; the job only fails when nothing imported.
func (w *PropertyWorker) bulkImport(ctx context.Context, job *queue.Job) error {
	records := payloadRecords(job.Payload["records"])
	if len(records) == 0 {
		return fmt.Errorf("bulk-import: records are required")
	}
	companyID, _ := job.Payload.String("companyId")
	opts := bulkOptions(job.Payload["options"])

	created, updated, skipped, invalid := 0, 0, 0, 0
	for i, record := range records {
		name, _ := record.String("name")
		address, _ := record.String("address")
		if opts.ValidateData && (name == "" || address == "") {
			w.logger.Warn("bulk-import: record %d missing name or address, skipping", i)
			invalid++
			continue
		}

		existingID := ""
		if address != "" {
			id, err := w.deps.Store.FindPropertyByAddress(ctx, address)
			if err != nil {
				return fmt.Errorf("bulk-import: lookup %q: %w", address, err)
			}
			existingID = id
		}
		if existingID != "" {
			if opts.UpdateExisting {
				if err := w.deps.Store.UpdateProperty(ctx, existingID, record.Clone()); err != nil {
					return fmt.Errorf("bulk-import: update property %s: %w", existingID, err)
				}
				updated++
			} else if opts.SkipDuplicates {
				skipped++
			}
			continue
		}

		fields := record.Clone()
		if companyID != "" {
			fields["companyId"] = companyID
		}
		fields["importedAt"] = time.Now().UTC()
		id, err := w.deps.Store.CreateProperty(ctx, fields)
		if err != nil {
			return fmt.Errorf("bulk-import: create record %d: %w", i, err)
		}
		created++

		if opts.GeocodeAddresses && address != "" {
			if _, gerr := w.AddGeocodeJob(ctx, id, address, job.Context); gerr != nil {
				w.logger.Warn("bulk-import: enqueue geocoding for %s: %v", id, gerr)
			}
		}
	}

	if invalid == len(records) {
		return fmt.Errorf("bulk-import: all %d records invalid", len(records))
	}
	w.logger.Info("bulk import finished: %d created, %d updated, %d skipped, %d invalid of %d",
		created, updated, skipped, invalid, len(records))
	return nil
}

func (w *PropertyWorker) cleanupData(ctx context.Context, job *queue.Job) error {
	daysOld, ok := job.Payload.Int("daysOld")
	if !ok || daysOld <= 0 {
		daysOld = 90
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -daysOld)
	removed, err := w.deps.Store.DeleteOrphanedRecords(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup-data: %w", err)
	}
	w.logger.Info("removed %d orphaned property records", removed)
	return nil
}

// Package workers instantiates the queue framework for the three job
// domains: notification delivery, property processing, and external data
// sync. Each worker owns one queue and exposes typed Add methods so callers
// never build job payloads by hand.
package workers

import (
	"context"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
)

// EmailMessage is one outbound email.
type EmailMessage struct {
	To           string
	Subject      string
	Template     string
	TemplateData automation.Payload
	HighPriority bool
}

// PushMessage is one push notification addressed to a device token.
type PushMessage struct {
	Title string
	Body  string
	Data  automation.Payload
}

// InAppMessage is delivered over the realtime channel to a signed-in user.
type InAppMessage struct {
	Type    string
	Title   string
	Message string
	Data    automation.Payload
}

// Mailer sends transactional email.
type Mailer interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// SMSSender delivers short text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// PushSender delivers a push notification to one device token.
type PushSender interface {
	SendPush(ctx context.Context, token string, msg PushMessage) error
}

// RealtimeNotifier delivers in-app notifications over the live channel.
// delivered is false when the user has no open session; the notification is
// still persisted for the next login.
type RealtimeNotifier interface {
	SendInApp(ctx context.Context, userID string, msg InAppMessage) (delivered bool, err error)
}

// NotificationStore is the persistence surface the notification worker
// touches: delivery bookkeeping, push token registry, contact lookup, and
// digest queries.
type NotificationStore interface {
	MarkDelivered(ctx context.Context, notificationID, channel string) error
	MarkFailed(ctx context.Context, notificationID, channel, reason string) error
	PushTokens(ctx context.Context, userID string) ([]string, error)
	RemovePushToken(ctx context.Context, userID, token string) error
	// Contact returns the user's registered email and phone. Either may
	// be empty when the user never registered that channel.
	Contact(ctx context.Context, userID string) (email, phone string, err error)
	UnreadSince(ctx context.Context, userID string, since time.Time) ([]automation.Payload, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// FileRef points at an uploaded file awaiting processing.
type FileRef struct {
	Filename string
	URL      string
	MimeType string
	Size     int64
}

// ImageOptions control one image-processing pass.
type ImageOptions struct {
	MaxWidth        int
	MaxHeight       int
	ThumbnailWidth  int
	ThumbnailHeight int
	Quality         int
}

// ProcessedImage is the stored result of one image-processing pass.
type ProcessedImage struct {
	Filename     string
	URL          string
	ThumbnailURL string
	Width        int
	Height       int
	Size         int64
}

// ImageProcessor resizes and stores property images.
type ImageProcessor interface {
	Process(ctx context.Context, propertyID string, file FileRef, opts ImageOptions) (ProcessedImage, error)
}

// Geocoder resolves a street address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lng float64, err error)
}

// PropertyStore is the persistence surface the property worker touches.
type PropertyStore interface {
	Property(ctx context.Context, id string) (automation.Payload, error)
	CreateProperty(ctx context.Context, fields automation.Payload) (id string, err error)
	UpdateProperty(ctx context.Context, id string, fields automation.Payload) error
	// FindPropertyByAddress returns the id of the property at address, or
	// an empty id when none exists.
	FindPropertyByAddress(ctx context.Context, address string) (id string, err error)
	SaveImage(ctx context.Context, propertyID string, img ProcessedImage) error
	PropertiesModifiedSince(ctx context.Context, since time.Time) ([]string, error)
	DeleteOrphanedRecords(ctx context.Context, olderThan time.Time) (int, error)
}

// ListingPublisher pushes a property listing to the public website.
type ListingPublisher interface {
	PublishListing(ctx context.Context, propertyID string, listing automation.Payload) error
	UnpublishListing(ctx context.Context, propertyID string) error
}

// MarketDataClient fetches comparable-market figures from an external
// provider (zillow, realtor, rentometer).
type MarketDataClient interface {
	FetchMarketData(ctx context.Context, source string) (automation.Payload, error)
}

// ExternalListingClient exchanges property records with an external listing
// platform.
type ExternalListingClient interface {
	PullProperties(ctx context.Context) ([]automation.Payload, error)
	PushProperty(ctx context.Context, propertyID string, record automation.Payload) error
}

// Integration is one configured third-party connection.
type Integration struct {
	ID   string
	Name string
	Type string
}

// IntegrationRegistry lists the configured third-party integrations and
// runs one integration's sync pass.
type IntegrationRegistry interface {
	Integrations(ctx context.Context) ([]Integration, error)
	SyncIntegration(ctx context.Context, integrationID, syncType string) (records int, err error)
}

// TenantDirectory reconciles tenant records against an external system of
// record.
type TenantDirectory interface {
	SyncTenants(ctx context.Context, since time.Time) (updated int, err error)
}

// LedgerClient reconciles financial transactions with the accounting
// backend.
type LedgerClient interface {
	SyncTransactions(ctx context.Context, since time.Time) (synced int, err error)
}

// DataValidator audits stored records and repairs what it safely can.
type DataValidator interface {
	ValidateAndRepair(ctx context.Context, scope string) (checked, repaired int, err error)
}

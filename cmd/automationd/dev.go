package main

import (
	"context"
	"fmt"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/workers"
)

// devCollaborators is the delivery and integration surface used until real
// providers are configured. Every operation logs and succeeds, so the
// pipelines can be exercised end to end without external accounts.
type devCollaborators struct {
	logger automation.Logger
}

func (d devCollaborators) SendEmail(_ context.Context, msg workers.EmailMessage) error {
	d.logger.Info("dev mailer: email to %s (%s)", msg.To, msg.Subject)
	return nil
}

func (d devCollaborators) SendSMS(_ context.Context, to, message string) error {
	d.logger.Info("dev sms: message to %s (%d chars)", to, len(message))
	return nil
}

func (d devCollaborators) SendPush(_ context.Context, token string, msg workers.PushMessage) error {
	d.logger.Info("dev push: %s to token %s", msg.Title, token)
	return nil
}

func (d devCollaborators) SendInApp(_ context.Context, userID string, msg workers.InAppMessage) (bool, error) {
	d.logger.Info("dev realtime: %s to user %s", msg.Type, userID)
	return true, nil
}

func (d devCollaborators) MarkDelivered(context.Context, string, string) error      { return nil }
func (d devCollaborators) MarkFailed(context.Context, string, string, string) error { return nil }
func (d devCollaborators) PushTokens(context.Context, string) ([]string, error)     { return nil, nil }
func (d devCollaborators) RemovePushToken(context.Context, string, string) error    { return nil }
func (d devCollaborators) Contact(context.Context, string) (string, string, error) {
	return "", "", nil
}
func (d devCollaborators) UnreadSince(context.Context, string, time.Time) ([]automation.Payload, error) {
	return nil, nil
}
func (d devCollaborators) DeleteReadBefore(context.Context, time.Time) (int, error) { return 0, nil }

func (d devCollaborators) Property(context.Context, string) (automation.Payload, error) {
	return automation.Payload{}, nil
}
func (d devCollaborators) CreateProperty(_ context.Context, fields automation.Payload) (string, error) {
	id := fmt.Sprintf("dev_%d", time.Now().UnixNano())
	d.logger.Debug("dev store: property %s created with %d fields", id, len(fields))
	return id, nil
}
func (d devCollaborators) UpdateProperty(_ context.Context, id string, fields automation.Payload) error {
	d.logger.Debug("dev store: property %s updated with %d fields", id, len(fields))
	return nil
}
func (d devCollaborators) FindPropertyByAddress(context.Context, string) (string, error) {
	return "", nil
}
func (d devCollaborators) SaveImage(context.Context, string, workers.ProcessedImage) error {
	return nil
}
func (d devCollaborators) PropertiesModifiedSince(context.Context, time.Time) ([]string, error) {
	return nil, nil
}
func (d devCollaborators) DeleteOrphanedRecords(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (d devCollaborators) Process(_ context.Context, _ string, file workers.FileRef, _ workers.ImageOptions) (workers.ProcessedImage, error) {
	return workers.ProcessedImage{Filename: file.Filename, URL: file.URL}, nil
}

func (d devCollaborators) Geocode(_ context.Context, address string) (float64, float64, error) {
	d.logger.Debug("dev geocoder: %s", address)
	return 0, 0, nil
}

func (d devCollaborators) PublishListing(_ context.Context, propertyID string, _ automation.Payload) error {
	d.logger.Info("dev website: published listing %s", propertyID)
	return nil
}
func (d devCollaborators) UnpublishListing(_ context.Context, propertyID string) error {
	d.logger.Info("dev website: unpublished listing %s", propertyID)
	return nil
}

func (d devCollaborators) FetchMarketData(_ context.Context, source string) (automation.Payload, error) {
	return automation.Payload{"source": source, "fetchedAt": time.Now().UTC()}, nil
}
func (d devCollaborators) PullProperties(context.Context) ([]automation.Payload, error) {
	return nil, nil
}
func (d devCollaborators) PushProperty(context.Context, string, automation.Payload) error {
	return nil
}
func (d devCollaborators) Integrations(context.Context) ([]workers.Integration, error) {
	return nil, nil
}
func (d devCollaborators) SyncIntegration(_ context.Context, integrationID, syncType string) (int, error) {
	d.logger.Debug("dev integrations: %s sync of %s", syncType, integrationID)
	return 0, nil
}
func (d devCollaborators) SyncTenants(context.Context, time.Time) (int, error)      { return 0, nil }
func (d devCollaborators) SyncTransactions(context.Context, time.Time) (int, error) { return 0, nil }
func (d devCollaborators) ValidateAndRepair(context.Context, string) (int, int, error) {
	return 0, 0, nil
}

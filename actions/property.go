package actions

import (
	"context"
	"fmt"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/workflow"
)

// WorkflowPropertyUpload is the intake pipeline for a newly created
// property listing.
const WorkflowPropertyUpload = "property_upload"

func propertyUploadWorkflow() workflow.Definition {
	return workflow.Definition{
		ID:          WorkflowPropertyUpload,
		Name:        "Property Upload Workflow",
		Description: "Automated processing pipeline for property uploads",
		Active:      true,
		Steps: []workflow.Step{
			{
				ID:        "upload_validation",
				Name:      "Upload Validation",
				Action:    "validatePropertyUpload",
				OnSuccess: "image_processing",
				OnFailure: "upload_failed",
			},
			{
				ID:        "image_processing",
				Name:      "Image Processing",
				Action:    "processPropertyImages",
				OnSuccess: "geocoding",
				OnFailure: "image_processing_failed",
			},
			{
				ID:        "geocoding",
				Name:      "Geocoding",
				Action:    "geocodePropertyAddress",
				OnSuccess: "data_enrichment",
				OnFailure: "geocoding_failed",
			},
			{
				ID:        "data_enrichment",
				Name:      "Data Enrichment",
				Action:    "enrichPropertyData",
				OnSuccess: "approval_check",
				OnFailure: "enrichment_failed",
			},
			{
				ID:        "approval_check",
				Name:      "Approval Check",
				Action:    "checkApprovalRequirements",
				OnSuccess: "website_update",
				OnFailure: "pending_approval",
			},
			{
				ID:        "website_update",
				Name:      "Website Update",
				Action:    "updateWebsiteListing",
				OnSuccess: "complete",
				OnFailure: "website_update_failed",
			},
		},
	}
}

func registerPropertyActions(reg *workflow.ActionRegistry, deps Deps) error {
	log := deps.logger()

	handlers := map[string]workflow.ActionFunc{
		"validatePropertyUpload":    validatePropertyUpload,
		"processPropertyImages":     processPropertyImages(log),
		"geocodePropertyAddress":    geocodePropertyAddress(deps),
		"enrichPropertyData":        enrichPropertyData,
		"checkApprovalRequirements": checkApprovalRequirements(log),
		"updateWebsiteListing":      updateWebsiteListing(log),
	}
	for name, fn := range handlers {
		if err := reg.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func validatePropertyUpload(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	for _, field := range []string{"name", "address", "type", "rentalType"} {
		if v, ok := data.String(field); !ok || v == "" {
			if _, isMap := data[field].(map[string]any); !isMap {
				return workflow.Failure(fmt.Sprintf("missing required field: %s", field)), nil
			}
		}
	}
	if addr, ok := data["address"].(map[string]any); ok {
		a := automation.Payload(addr)
		street, _ := a.String("street")
		city, _ := a.String("city")
		country, _ := a.String("country")
		if street == "" || city == "" || country == "" {
			return workflow.Failure("invalid address format"), nil
		}
	}
	return workflow.Success("property upload validated"), nil
}

func processPropertyImages(log automation.Logger) workflow.ActionFunc {
	return func(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
		count := 0
		if images, ok := data["images"].([]any); ok {
			count = len(images)
		}
		log.Debug("queued %d property images for processing", count)
		return workflow.Success("images processed").WithField("processedImages", count), nil
	}
}

func geocodePropertyAddress(deps Deps) workflow.ActionFunc {
	return func(ctx context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
		address := flattenAddress(data)
		if address == "" {
			return workflow.Failure("geocoding failed: no address on record"), nil
		}
		if deps.Geocoder == nil {
			return workflow.Success("geocoding skipped, no provider configured"), nil
		}
		lat, lng, err := deps.Geocoder.Geocode(ctx, address)
		if err != nil {
			return workflow.Failure(fmt.Sprintf("geocoding failed: %v", err)), nil
		}
		return workflow.Success("address geocoded").
			WithField("latitude", lat).
			WithField("longitude", lng), nil
	}
}

func flattenAddress(data automation.Payload) string {
	if s, ok := data.String("address"); ok && s != "" {
		return s
	}
	addr, ok := data["address"].(map[string]any)
	if !ok {
		return ""
	}
	a := automation.Payload(addr)
	street, _ := a.String("street")
	city, _ := a.String("city")
	state, _ := a.String("state")
	postal, _ := a.String("postalCode")
	country, _ := a.String("country")
	if street == "" && city == "" {
		return ""
	}
	return fmt.Sprintf("%s, %s, %s %s, %s", street, city, state, postal, country)
}

func enrichPropertyData(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	result := workflow.Success("property data enriched")

	area, hasArea := data.Float("area")
	bedrooms, hasBedrooms := data.Int("bedrooms")
	if hasArea && area > 0 {
		estimate := area * 200
		if hasBedrooms {
			estimate += float64(bedrooms) * 50000
		}
		result.WithField("marketValue", estimate)
	}
	if rent, ok := data.Float("monthlyRent"); ok && rent > 0 && hasArea && area > 0 {
		result.WithField("rentPerSqft", rent/area)
	}
	return result, nil
}

// checkApprovalRequirements branches the workflow: listings that need a
// human approval jump past the publish step via NextStep.
func checkApprovalRequirements(log automation.Logger) workflow.ActionFunc {
	return func(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
		rentalType, _ := data.String("rentalType")
		amount, _ := data.Float("price")
		hasRights, _ := data["userHasApprovalRights"].(bool)

		needsApproval := rentalType == "short_term" || amount > 10000 || !hasRights
		if needsApproval {
			log.Info("property requires approval before publishing")
			return workflow.Success("approval request created").
				WithField("needsApproval", true).
				WithNextStep(workflow.TerminalStep), nil
		}
		return workflow.Success("no approval required").
			WithField("needsApproval", false), nil
	}
}

func updateWebsiteListing(log automation.Logger) workflow.ActionFunc {
	return func(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
		propertyID, _ := data.String("propertyId")
		log.Info("website listing update queued for property %s", propertyID)
		return workflow.Success("website listing updated").
			WithField("websiteUpdated", true), nil
	}
}

package actions

import (
	"context"
	"fmt"
	"strings"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/workers"
	"github.com/livingstone45/stayspot-sub007/workflow"
)

// WorkflowMaintenanceRequest routes a submitted maintenance request from
// triage through vendor assignment to tenant notification.
const WorkflowMaintenanceRequest = "maintenance_request"

func maintenanceRequestWorkflow() workflow.Definition {
	return workflow.Definition{
		ID:          WorkflowMaintenanceRequest,
		Name:        "Maintenance Request Workflow",
		Description: "Automated handling of maintenance requests",
		Active:      true,
		Steps: []workflow.Step{
			{
				ID:        "request_triage",
				Name:      "Request Triage",
				Action:    "triageMaintenanceRequest",
				OnSuccess: "priority_assessment",
				OnFailure: "triage_failed",
			},
			{
				ID:        "priority_assessment",
				Name:      "Priority Assessment",
				Action:    "assessPriority",
				OnSuccess: "vendor_assignment",
				OnFailure: "priority_assessment_failed",
			},
			{
				ID:        "vendor_assignment",
				Name:      "Vendor Assignment",
				Action:    "assignVendor",
				OnSuccess: "work_order_creation",
				OnFailure: "vendor_assignment_failed",
			},
			{
				ID:        "work_order_creation",
				Name:      "Work Order Creation",
				Action:    "createWorkOrder",
				OnSuccess: "scheduling",
				OnFailure: "work_order_creation_failed",
			},
			{
				ID:        "scheduling",
				Name:      "Scheduling",
				Action:    "scheduleMaintenance",
				OnSuccess: "notification",
				OnFailure: "scheduling_failed",
			},
			{
				ID:        "notification",
				Name:      "Notification",
				Action:    "sendMaintenanceNotifications",
				OnSuccess: workflow.TerminalStep,
				OnFailure: "notification_failed",
			},
		},
	}
}

func registerMaintenanceActions(reg *workflow.ActionRegistry, deps Deps) error {
	handlers := map[string]workflow.ActionFunc{
		"triageMaintenanceRequest":     triageMaintenanceRequest,
		"assessPriority":               assessPriority,
		"assignVendor":                 assignVendor,
		"createWorkOrder":              createWorkOrder,
		"scheduleMaintenance":          scheduleMaintenance,
		"sendMaintenanceNotifications": sendMaintenanceNotifications(deps),
	}
	for name, fn := range handlers {
		if err := reg.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

var (
	emergencyKeywords = []string{"leak", "flood", "fire", "no heat", "no water", "electrical", "gas"}
	urgentKeywords    = []string{"broken", "not working", "malfunction", "issue"}
)

// triageMaintenanceRequest derives an initial priority from the request
// text, escalating on hazard keywords.
func triageMaintenanceRequest(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	title, _ := data.String("title")
	description, _ := data.String("description")
	category, _ := data.String("category")
	if title == "" && description == "" {
		return workflow.Failure("maintenance request has no title or description"), nil
	}

	text := strings.ToLower(title + " " + description)
	priority := "medium"
	switch {
	case containsAny(text, emergencyKeywords):
		priority = "emergency"
	case containsAny(text, urgentKeywords):
		priority = "high"
	case category == "cleaning" || category == "cosmetic":
		priority = "low"
	}
	if category == "" {
		category = "general"
	}

	return workflow.Success("maintenance request triaged").
		WithField("priority", priority).
		WithField("category", category), nil
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// assessPriority turns the triage priority into a response-time target.
func assessPriority(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	priority := triagePriority(data)

	var responseWithin time.Duration
	switch priority {
	case "emergency":
		responseWithin = 2 * time.Hour
	case "high":
		responseWithin = 24 * time.Hour
	case "low":
		responseWithin = 7 * 24 * time.Hour
	default:
		responseWithin = 3 * 24 * time.Hour
	}

	return workflow.Success("priority assessed").
		WithField("priority", priority).
		WithField("responseDeadline", time.Now().UTC().Add(responseWithin).Format(time.RFC3339)), nil
}

// triagePriority reads the priority the triage step stamped, falling back
// to the submitted value.
func triagePriority(data automation.Payload) string {
	if p, ok := data.String("priority"); ok && p != "" {
		return p
	}
	return "medium"
}

func assignVendor(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	category, _ := data.String("category")
	if category == "" {
		category = "general"
	}
	vendors := payloadVendorList(data)
	if len(vendors) == 0 {
		return workflow.Failure("no vendors available for this category and location"), nil
	}

	// Vendor list arrives sorted by rating; take the best.
	vendor := automation.Payload(vendors[0])
	vendorID, _ := vendor.String("id")
	vendorName, _ := vendor.String("name")

	return workflow.Success("vendor assigned").
		WithField("vendorId", vendorID).
		WithField("vendorName", vendorName).
		WithField("estimatedCost", estimateCost(category, triagePriority(data))), nil
}

func payloadVendorList(data automation.Payload) []map[string]any {
	raw, ok := data["availableVendors"].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func estimateCost(category, priority string) float64 {
	base := map[string]float64{
		"plumbing":   150,
		"electrical": 200,
		"general":    100,
		"cleaning":   80,
		"inspection": 120,
	}
	cost, ok := base[category]
	if !ok {
		cost = 100
	}
	switch priority {
	case "emergency":
		cost *= 2
	case "high":
		cost *= 1.5
	}
	return cost
}

func createWorkOrder(_ context.Context, data automation.Payload, rc automation.RequestContext) (*workflow.Result, error) {
	requestID, _ := data.String("requestId")
	if requestID == "" {
		return workflow.Failure("work order requires a requestId"), nil
	}
	vendorID, _ := data.String("vendorId")

	return workflow.Success("work order created").
		WithField("workOrderId", "wo_"+requestID).
		WithField("vendorId", vendorID).
		WithField("createdBy", rc.ActorID), nil
}

func scheduleMaintenance(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	priority := triagePriority(data)

	var startIn time.Duration
	switch priority {
	case "emergency":
		startIn = time.Hour
	case "high":
		startIn = 24 * time.Hour
	default:
		startIn = 3 * 24 * time.Hour
	}
	scheduled := time.Now().UTC().Add(startIn)

	return workflow.Success("maintenance visit scheduled").
		WithField("scheduledFor", scheduled.Format(time.RFC3339)), nil
}

func sendMaintenanceNotifications(deps Deps) workflow.ActionFunc {
	return func(ctx context.Context, data automation.Payload, rc automation.RequestContext) (*workflow.Result, error) {
		tenantID, _ := data.String("tenantId")
		requestID, _ := data.String("requestId")
		if deps.Notifier == nil || tenantID == "" {
			return workflow.Success("notification skipped"), nil
		}

		_, err := deps.Notifier.AddInAppJob(ctx, "maintenance_"+requestID, tenantID, workers.InAppMessage{
			Type:    "maintenance_update",
			Title:   "Maintenance request update",
			Message: fmt.Sprintf("Your maintenance request %s has been scheduled.", requestID),
			Data:    data.Clone(),
		}, rc)
		if err != nil {
			return workflow.Failure(fmt.Sprintf("notification enqueue failed: %v", err)), nil
		}
		return workflow.Success("tenant notified"), nil
	}
}

// Package actions holds the built-in workflow action handlers and the
// workflow definitions that use them: property upload intake, maintenance
// request handling, payment processing, tenant onboarding, and task
// assignment.
package actions

import (
	"context"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/queue"
	"github.com/livingstone45/stayspot-sub007/workers"
	"github.com/livingstone45/stayspot-sub007/workflow"
)

// Notifier enqueues in-app notifications from inside workflow steps.
// *workers.NotificationWorker satisfies it.
type Notifier interface {
	AddInAppJob(ctx context.Context, notificationID, userID string, msg workers.InAppMessage, rc automation.RequestContext) (*queue.Job, error)
}

// Deps are the collaborators the built-in actions reach out to. Every field
// is optional; actions degrade to their payload-only behavior when a
// collaborator is nil.
type Deps struct {
	Logger   automation.Logger
	Geocoder workers.Geocoder
	Notifier Notifier
}

func (d Deps) logger() automation.Logger {
	if d.Logger == nil {
		return automation.NewFmtLogger(nil)
	}
	return d.Logger
}

// RegisterAll installs every built-in action and failure handler into reg.
func RegisterAll(reg *workflow.ActionRegistry, deps Deps) error {
	groups := []func(*workflow.ActionRegistry, Deps) error{
		registerPropertyActions,
		registerMaintenanceActions,
		registerPaymentActions,
		registerTenantActions,
		registerTaskActions,
		registerFailureHandlers,
	}
	for _, register := range groups {
		if err := register(reg, deps); err != nil {
			return err
		}
	}
	return nil
}

// Workflows returns the built-in workflow definitions.
func Workflows() []workflow.Definition {
	return []workflow.Definition{
		propertyUploadWorkflow(),
		maintenanceRequestWorkflow(),
		paymentProcessingWorkflow(),
		tenantOnboardingWorkflow(),
		taskAssignmentWorkflow(),
	}
}

// Bindings returns the default trigger-to-workflow binding table.
func Bindings() map[string][]string {
	return map[string][]string{
		"property.created":              {WorkflowPropertyUpload},
		"maintenance.request_submitted": {WorkflowMaintenanceRequest},
		"maintenance.emergency":         {WorkflowMaintenanceRequest},
		"payment.received":              {WorkflowPaymentProcessing},
		"tenant.application_submitted":  {WorkflowTenantOnboarding},
		"task.created":                  {WorkflowTaskAssignment},
	}
}

package actions

import (
	"context"
	"fmt"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/workers"
	"github.com/livingstone45/stayspot-sub007/workflow"
)

// registerFailureHandlers installs the per-step failure handlers the
// built-in workflows reference. Handlers are best effort; they log, flag
// the affected record, and notify the actor where one is known.
func registerFailureHandlers(reg *workflow.ActionRegistry, deps Deps) error {
	log := deps.logger()

	logging := []string{
		"upload_failed",
		"image_processing_failed",
		"geocoding_failed",
		"enrichment_failed",
		"website_update_failed",
		"triage_failed",
		"priority_assessment_failed",
		"vendor_assignment_failed",
		"work_order_creation_failed",
		"scheduling_failed",
		"notification_failed",
		"validation_failed",
		"gateway_failed",
		"confirmation_failed",
		"distribution_failed",
		"reporting_failed",
		"background_check_failed",
		"credit_check_failed",
		"lease_generation_failed",
		"signing_failed",
		"payment_setup_failed",
		"move_in_failed",
		"skill_matching_failed",
		"unavailable",
		"workload_balancing_failed",
		"assignment_failed",
		"follow_up_failed",
	}
	for _, name := range logging {
		if err := reg.RegisterFailure(name, logFailure(log, name)); err != nil {
			return err
		}
	}

	// pending_approval is not a failure in the operational sense; the
	// listing waits for a human decision.
	if err := reg.RegisterFailure("pending_approval", notifyActor(deps, "approval_pending",
		"Listing awaiting approval", "Your property listing needs approval before it can be published.")); err != nil {
		return err
	}
	if err := reg.RegisterFailure("fraud_detected", notifyActor(deps, "payment_frozen",
		"Payment under review", "A payment on your account was flagged and is being reviewed.")); err != nil {
		return err
	}
	return reg.RegisterFailure("application_rejected", notifyActor(deps, "application_rejected",
		"Application update", "Your rental application could not be approved at this time."))
}

func logFailure(log automation.Logger, name string) workflow.FailureFunc {
	return func(_ context.Context, data automation.Payload, rc automation.RequestContext) error {
		log.Warn("failure handler %s invoked (trigger %s, actor %s)", name, rc.Trigger, rc.ActorID)
		return nil
	}
}

func notifyActor(deps Deps, msgType, title, message string) workflow.FailureFunc {
	log := deps.logger()
	return func(ctx context.Context, data automation.Payload, rc automation.RequestContext) error {
		log.Warn("failure handler %s invoked (trigger %s)", msgType, rc.Trigger)
		if deps.Notifier == nil || rc.ActorID == "" {
			return nil
		}
		_, err := deps.Notifier.AddInAppJob(ctx, fmt.Sprintf("%s_%s", msgType, rc.RequestID), rc.ActorID, workers.InAppMessage{
			Type:    msgType,
			Title:   title,
			Message: message,
			Data:    data.Clone(),
		}, rc)
		return err
	}
}

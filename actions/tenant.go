package actions

import (
	"context"
	"fmt"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/workers"
	"github.com/livingstone45/stayspot-sub007/workflow"
)

// WorkflowTenantOnboarding takes a submitted rental application from review
// through screening and lease signing to move-in coordination.
const WorkflowTenantOnboarding = "tenant_onboarding"

func tenantOnboardingWorkflow() workflow.Definition {
	return workflow.Definition{
		ID:          WorkflowTenantOnboarding,
		Name:        "Tenant Onboarding Workflow",
		Description: "Automated tenant onboarding process",
		Active:      true,
		Steps: []workflow.Step{
			{
				ID:        "application_review",
				Name:      "Application Review",
				Action:    "reviewTenantApplication",
				OnSuccess: "background_check",
				OnFailure: "application_rejected",
			},
			{
				ID:        "background_check",
				Name:      "Background Check",
				Action:    "performBackgroundCheck",
				OnSuccess: "credit_check",
				OnFailure: "background_check_failed",
			},
			{
				ID:        "credit_check",
				Name:      "Credit Check",
				Action:    "performCreditCheck",
				OnSuccess: "lease_generation",
				OnFailure: "credit_check_failed",
			},
			{
				ID:        "lease_generation",
				Name:      "Lease Generation",
				Action:    "generateLeaseAgreement",
				OnSuccess: "document_signing",
				OnFailure: "lease_generation_failed",
			},
			{
				ID:        "document_signing",
				Name:      "Document Signing",
				Action:    "sendDocumentsForSigning",
				OnSuccess: "payment_setup",
				OnFailure: "signing_failed",
			},
			{
				ID:        "payment_setup",
				Name:      "Payment Setup",
				Action:    "setupAutomaticPayments",
				OnSuccess: "move_in_coordination",
				OnFailure: "payment_setup_failed",
			},
			{
				ID:        "move_in_coordination",
				Name:      "Move-in Coordination",
				Action:    "coordinateMoveIn",
				OnSuccess: workflow.TerminalStep,
				OnFailure: "move_in_failed",
			},
		},
	}
}

func registerTenantActions(reg *workflow.ActionRegistry, deps Deps) error {
	handlers := map[string]workflow.ActionFunc{
		"reviewTenantApplication": reviewTenantApplication,
		"performBackgroundCheck":  performBackgroundCheck,
		"performCreditCheck":      performCreditCheck,
		"generateLeaseAgreement":  generateLeaseAgreement,
		"sendDocumentsForSigning": sendDocumentsForSigning(deps),
		"setupAutomaticPayments":  setupAutomaticPayments,
		"coordinateMoveIn":        coordinateMoveIn(deps),
	}
	for name, fn := range handlers {
		if err := reg.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// Applicants must earn at least this multiple of the monthly rent.
const minIncomeToRentRatio = 3.0

// reviewTenantApplication checks the application is complete and the
// declared income clears the rent requirement.
func reviewTenantApplication(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	applicationID, _ := data.String("applicationId")
	if applicationID == "" {
		return workflow.Failure("application has no applicationId"), nil
	}
	income, hasIncome := data.Float("monthlyIncome")
	rent, hasRent := data.Float("monthlyRent")
	if !hasIncome || !hasRent || rent <= 0 {
		return workflow.Failure("application is missing income or rent figures"), nil
	}
	if income < rent*minIncomeToRentRatio {
		return workflow.Failure(fmt.Sprintf("income %.2f below %.0fx rent requirement", income, minIncomeToRentRatio)), nil
	}

	return workflow.Success("application reviewed").
		WithField("applicationStatus", "under_review").
		WithField("incomeToRentRatio", income/rent), nil
}

// performBackgroundCheck fails the application on a criminal record or an
// eviction history.
func performBackgroundCheck(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	if flagged, _ := data["criminalRecord"].(bool); flagged {
		return workflow.Failure("background check flagged a criminal record"), nil
	}
	if flagged, _ := data["evictionHistory"].(bool); flagged {
		return workflow.Failure("background check flagged a prior eviction"), nil
	}
	return workflow.Success("background check clear").
		WithField("backgroundCheck", "clear"), nil
}

// performCreditCheck requires a minimum score and grades the applicant into
// a tier lease terms can key on.
func performCreditCheck(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	score, ok := data.Int("creditScore")
	if !ok {
		return workflow.Failure("application has no credit score"), nil
	}
	if score < 600 {
		return workflow.Failure(fmt.Sprintf("credit score %d below minimum 600", score)), nil
	}

	tier := "fair"
	switch {
	case score >= 750:
		tier = "excellent"
	case score >= 680:
		tier = "good"
	}
	return workflow.Success("credit check passed").
		WithField("creditTier", tier), nil
}

func generateLeaseAgreement(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	applicationID, _ := data.String("applicationId")
	if applicationID == "" {
		return workflow.Failure("lease requires an applicationId"), nil
	}
	propertyID, _ := data.String("propertyId")
	if propertyID == "" {
		return workflow.Failure("lease requires a propertyId"), nil
	}
	termMonths, ok := data.Int("leaseTermMonths")
	if !ok || termMonths <= 0 {
		termMonths = 12
	}

	return workflow.Success("lease agreement generated").
		WithField("leaseId", "lease_"+applicationID).
		WithField("leaseTermMonths", termMonths), nil
}

func sendDocumentsForSigning(deps Deps) workflow.ActionFunc {
	return func(ctx context.Context, data automation.Payload, rc automation.RequestContext) (*workflow.Result, error) {
		leaseID, _ := data.String("leaseId")
		applicantID, _ := data.String("applicantId")
		if leaseID == "" {
			return workflow.Failure("no lease to send for signing"), nil
		}

		result := workflow.Success("documents sent for signing").
			WithField("signingRequestId", "sign_"+leaseID)
		if deps.Notifier == nil || applicantID == "" {
			return result, nil
		}
		_, err := deps.Notifier.AddInAppJob(ctx, "signing_"+leaseID, applicantID, workers.InAppMessage{
			Type:    "lease_signing",
			Title:   "Your lease is ready to sign",
			Message: "Review and sign your lease agreement to continue your move-in.",
			Data:    data.Clone(),
		}, rc)
		if err != nil {
			return workflow.Failure(fmt.Sprintf("signing notification enqueue failed: %v", err)), nil
		}
		return result, nil
	}
}

func setupAutomaticPayments(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	paymentMethodID, _ := data.String("paymentMethodId")
	if paymentMethodID == "" {
		return workflow.Failure("no payment method on file"), nil
	}
	rent, _ := data.Float("monthlyRent")

	return workflow.Success("automatic payments configured").
		WithField("autopayEnabled", true).
		WithField("autopayAmount", rent), nil
}

func coordinateMoveIn(deps Deps) workflow.ActionFunc {
	return func(ctx context.Context, data automation.Payload, rc automation.RequestContext) (*workflow.Result, error) {
		applicantID, _ := data.String("applicantId")

		moveIn := time.Now().UTC().Add(14 * 24 * time.Hour)
		if v, ok := data.String("moveInDate"); ok && v != "" {
			if parsed, err := time.Parse(time.RFC3339, v); err == nil {
				moveIn = parsed
			}
		}
		inspection := moveIn.Add(-24 * time.Hour)

		result := workflow.Success("move-in coordinated").
			WithField("moveInDate", moveIn.Format(time.RFC3339)).
			WithField("inspectionDate", inspection.Format(time.RFC3339))
		if deps.Notifier == nil || applicantID == "" {
			return result, nil
		}
		_, err := deps.Notifier.AddInAppJob(ctx, "movein_"+applicantID, applicantID, workers.InAppMessage{
			Type:    "move_in_scheduled",
			Title:   "Welcome! Your move-in is scheduled",
			Message: fmt.Sprintf("Your move-in is scheduled for %s.", moveIn.Format("January 2, 2006")),
			Data:    data.Clone(),
		}, rc)
		if err != nil {
			return workflow.Failure(fmt.Sprintf("move-in notification enqueue failed: %v", err)), nil
		}
		return result, nil
	}
}

package actions

import (
	"context"
	"fmt"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/workers"
	"github.com/livingstone45/stayspot-sub007/workflow"
)

// WorkflowPaymentProcessing runs a received payment through validation,
// fraud screening, gateway capture, and owner distribution.
const WorkflowPaymentProcessing = "payment_processing"

func paymentProcessingWorkflow() workflow.Definition {
	return workflow.Definition{
		ID:          WorkflowPaymentProcessing,
		Name:        "Payment Processing Workflow",
		Description: "Automated processing of received payments",
		Active:      true,
		Steps: []workflow.Step{
			{
				ID:        "payment_validation",
				Name:      "Payment Validation",
				Action:    "validatePayment",
				OnSuccess: "fraud_check",
				OnFailure: "validation_failed",
			},
			{
				ID:        "fraud_check",
				Name:      "Fraud Check",
				Action:    "checkForFraud",
				OnSuccess: "gateway_processing",
				OnFailure: "fraud_detected",
			},
			{
				ID:        "gateway_processing",
				Name:      "Gateway Processing",
				Action:    "processPaymentGateway",
				OnSuccess: "confirmation",
				OnFailure: "gateway_failed",
			},
			{
				ID:        "confirmation",
				Name:      "Confirmation",
				Action:    "sendPaymentConfirmation",
				OnSuccess: "owner_distribution",
				OnFailure: "confirmation_failed",
			},
			{
				ID:        "owner_distribution",
				Name:      "Owner Distribution",
				Action:    "distributeToOwner",
				OnSuccess: "reporting",
				OnFailure: "distribution_failed",
			},
			{
				ID:        "reporting",
				Name:      "Reporting",
				Action:    "updateFinancialReports",
				OnSuccess: workflow.TerminalStep,
				OnFailure: "reporting_failed",
			},
		},
	}
}

func registerPaymentActions(reg *workflow.ActionRegistry, deps Deps) error {
	log := deps.logger()

	handlers := map[string]workflow.ActionFunc{
		"validatePayment":         validatePayment,
		"checkForFraud":           checkForFraud,
		"processPaymentGateway":   processPaymentGateway(log),
		"sendPaymentConfirmation": sendPaymentConfirmation(deps),
		"distributeToOwner":       distributeToOwner,
		"updateFinancialReports":  updateFinancialReports(log),
	}
	for name, fn := range handlers {
		if err := reg.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func validatePayment(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	if _, ok := data["paymentId"]; !ok {
		return workflow.Failure("payment is missing paymentId"), nil
	}
	amount, ok := data.Float("amount")
	if !ok || amount <= 0 {
		return workflow.Failure("payment amount must be positive"), nil
	}
	if _, ok := data["tenantId"]; !ok {
		return workflow.Failure("payment is missing tenantId"), nil
	}
	return workflow.Success("payment validated").WithField("amount", amount), nil
}

// checkForFraud applies cheap heuristics; anything suspicious fails the
// step so the fraud_detected handler can freeze the payment.
func checkForFraud(_ context.Context, data automation.Payload, rc automation.RequestContext) (*workflow.Result, error) {
	amount, _ := data.Float("amount")

	score := 0
	if amount > 50000 {
		score += 50
	}
	if rc.IPAddress == "" && rc.ActorID == "" {
		score += 20
	}
	if flagged, _ := data["accountFlagged"].(bool); flagged {
		score += 60
	}

	if score >= 60 {
		return workflow.Failure(fmt.Sprintf("payment flagged for fraud review (score %d)", score)), nil
	}
	return workflow.Success("fraud check passed").WithField("fraudScore", score), nil
}

func processPaymentGateway(log automation.Logger) workflow.ActionFunc {
	return func(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
		paymentID := fmt.Sprintf("%v", data["paymentId"])
		method, _ := data.String("method")
		if method == "" {
			method = "ach"
		}
		log.Info("capturing payment %s via %s gateway", paymentID, method)
		return workflow.Success("payment captured").
			WithField("gatewayReference", "gw_"+paymentID).
			WithField("capturedAt", time.Now().UTC().Format(time.RFC3339)), nil
	}
}

func sendPaymentConfirmation(deps Deps) workflow.ActionFunc {
	return func(ctx context.Context, data automation.Payload, rc automation.RequestContext) (*workflow.Result, error) {
		tenantID := fmt.Sprintf("%v", data["tenantId"])
		if deps.Notifier == nil || tenantID == "" {
			return workflow.Success("confirmation skipped"), nil
		}
		paymentID := fmt.Sprintf("%v", data["paymentId"])
		amount, _ := data.Float("amount")

		_, err := deps.Notifier.AddInAppJob(ctx, "payment_"+paymentID, tenantID, workers.InAppMessage{
			Type:    "payment_confirmation",
			Title:   "Payment received",
			Message: fmt.Sprintf("Your payment of %.2f was received.", amount),
			Data:    automation.Payload{"paymentId": paymentID, "amount": amount},
		}, rc)
		if err != nil {
			return workflow.Failure(fmt.Sprintf("confirmation enqueue failed: %v", err)), nil
		}
		return workflow.Success("confirmation sent"), nil
	}
}

// distributeToOwner computes the owner payout after the management fee.
func distributeToOwner(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
	amount, _ := data.Float("amount")
	feeRate, ok := data.Float("managementFeeRate")
	if !ok || feeRate <= 0 || feeRate >= 1 {
		feeRate = 0.08
	}
	fee := amount * feeRate

	return workflow.Success("owner distribution recorded").
		WithField("managementFee", fee).
		WithField("ownerPayout", amount-fee), nil
}

func updateFinancialReports(log automation.Logger) workflow.ActionFunc {
	return func(_ context.Context, data automation.Payload, _ automation.RequestContext) (*workflow.Result, error) {
		paymentID := fmt.Sprintf("%v", data["paymentId"])
		log.Debug("financial reports refreshed for payment %s", paymentID)
		return workflow.Success("financial reports updated"), nil
	}
}

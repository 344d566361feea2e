package actions

import (
	"errors"
	"strings"
	"testing"

	automation "github.com/livingstone45/stayspot-sub007"
)

func validPayment() automation.Payload {
	return automation.Payload{"paymentId": "pay1", "tenantId": "t1", "amount": 1200.0}
}

func TestValidatePayment(t *testing.T) {
	mustSucceed(t, run(t, validatePayment, validPayment(), automation.RequestContext{}))

	data := validPayment()
	delete(data, "paymentId")
	mustFail(t, run(t, validatePayment, data, automation.RequestContext{}), "paymentId")

	data = validPayment()
	data["amount"] = 0.0
	mustFail(t, run(t, validatePayment, data, automation.RequestContext{}), "positive")

	data = validPayment()
	delete(data, "tenantId")
	mustFail(t, run(t, validatePayment, data, automation.RequestContext{}), "tenantId")
}

func TestCheckForFraudScoring(t *testing.T) {
	identified := automation.RequestContext{ActorID: "u1", IPAddress: "10.0.0.1"}

	// Large amount alone scores 50, below the review threshold.
	r := mustSucceed(t, run(t, checkForFraud,
		automation.Payload{"amount": 60000.0}, identified))
	if score, _ := r.Fields.Int("fraudScore"); score != 50 {
		t.Fatalf("expected score 50, got %d", score)
	}

	// Anonymous large payment crosses the threshold.
	mustFail(t, run(t, checkForFraud,
		automation.Payload{"amount": 60000.0}, automation.RequestContext{}), "fraud review")

	// A flagged account is enough on its own.
	mustFail(t, run(t, checkForFraud,
		automation.Payload{"amount": 100.0, "accountFlagged": true}, identified), "fraud review")

	// Ordinary payment scores zero.
	r = mustSucceed(t, run(t, checkForFraud, automation.Payload{"amount": 100.0}, identified))
	if score, _ := r.Fields.Int("fraudScore"); score != 0 {
		t.Fatalf("expected score 0, got %d", score)
	}
}

func TestProcessPaymentGateway(t *testing.T) {
	fn := processPaymentGateway(automation.NewFmtLogger(nil))
	r := mustSucceed(t, run(t, fn, validPayment(), automation.RequestContext{}))
	if ref, _ := r.Fields.String("gatewayReference"); ref != "gw_pay1" {
		t.Fatalf("expected gw_pay1, got %s", ref)
	}
	if at, _ := r.Fields.String("capturedAt"); at == "" {
		t.Fatal("expected capture timestamp")
	}
}

func TestSendPaymentConfirmation(t *testing.T) {
	notifier := &fakeNotifier{}
	fn := sendPaymentConfirmation(Deps{Notifier: notifier})

	mustSucceed(t, run(t, fn, validPayment(), automation.RequestContext{ActorID: "u1"}))
	if len(notifier.sent) != 1 {
		t.Fatalf("expected one confirmation, got %d", len(notifier.sent))
	}
	sent := notifier.sent[0]
	if sent.id != "payment_pay1" || sent.userID != "t1" {
		t.Fatalf("unexpected confirmation %+v", sent)
	}
	if !strings.Contains(sent.msg.Message, "1200.00") {
		t.Fatalf("expected amount in message, got %q", sent.msg.Message)
	}
}

func TestSendPaymentConfirmationSurfacesEnqueueFailure(t *testing.T) {
	fn := sendPaymentConfirmation(Deps{Notifier: &fakeNotifier{err: errors.New("queue down")}})
	mustFail(t, run(t, fn, validPayment(), automation.RequestContext{}), "queue down")
}

func TestDistributeToOwner(t *testing.T) {
	r := mustSucceed(t, run(t, distributeToOwner, automation.Payload{"amount": 1000.0}, automation.RequestContext{}))
	if fee, _ := r.Fields.Float("managementFee"); fee != 80 {
		t.Fatalf("expected default 8%% fee, got %v", fee)
	}
	if payout, _ := r.Fields.Float("ownerPayout"); payout != 920 {
		t.Fatalf("expected payout 920, got %v", payout)
	}

	// Explicit rate overrides the default; out-of-range rates are ignored.
	r = mustSucceed(t, run(t, distributeToOwner,
		automation.Payload{"amount": 1000.0, "managementFeeRate": 0.1}, automation.RequestContext{}))
	if fee, _ := r.Fields.Float("managementFee"); fee != 100 {
		t.Fatalf("expected 10%% fee, got %v", fee)
	}
	r = mustSucceed(t, run(t, distributeToOwner,
		automation.Payload{"amount": 1000.0, "managementFeeRate": 1.5}, automation.RequestContext{}))
	if fee, _ := r.Fields.Float("managementFee"); fee != 80 {
		t.Fatalf("expected fallback to default fee, got %v", fee)
	}
}

package actions

import (
	"testing"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
)

func TestTriageClassifiesByKeywordAndCategory(t *testing.T) {
	cases := []struct {
		name     string
		data     automation.Payload
		priority string
		category string
	}{
		{"hazard keyword in title", automation.Payload{"title": "Gas smell in hallway"}, "emergency", "general"},
		{"hazard keyword in description", automation.Payload{"title": "Bathroom", "description": "slow leak under sink"}, "emergency", "general"},
		{"urgent keyword", automation.Payload{"title": "Dishwasher not working"}, "high", "general"},
		{"cleaning category", automation.Payload{"title": "Hallway needs mopping", "category": "cleaning"}, "low", "cleaning"},
		{"cosmetic category", automation.Payload{"title": "Scuffed paint", "category": "cosmetic"}, "low", "cosmetic"},
		{"default", automation.Payload{"title": "Squeaky door"}, "medium", "general"},
		// Hazard keywords win over category.
		{"hazard beats category", automation.Payload{"title": "Flood in laundry room", "category": "cleaning"}, "emergency", "cleaning"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := mustSucceed(t, run(t, triageMaintenanceRequest, tc.data, automation.RequestContext{}))
			if p, _ := r.Fields.String("priority"); p != tc.priority {
				t.Fatalf("expected priority %s, got %s", tc.priority, p)
			}
			if c, _ := r.Fields.String("category"); c != tc.category {
				t.Fatalf("expected category %s, got %s", tc.category, c)
			}
		})
	}
}

func TestTriageRejectsEmptyRequest(t *testing.T) {
	r := run(t, triageMaintenanceRequest, automation.Payload{"category": "plumbing"}, automation.RequestContext{})
	mustFail(t, r, "no title or description")
}

func TestAssessPriorityDeadlines(t *testing.T) {
	cases := []struct {
		priority string
		within   time.Duration
	}{
		{"emergency", 2 * time.Hour},
		{"high", 24 * time.Hour},
		{"low", 7 * 24 * time.Hour},
		{"medium", 3 * 24 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.priority, func(t *testing.T) {
			before := time.Now().UTC()
			r := mustSucceed(t, run(t, assessPriority, automation.Payload{"priority": tc.priority}, automation.RequestContext{}))

			raw, _ := r.Fields.String("responseDeadline")
			deadline, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				t.Fatalf("parse deadline %q: %v", raw, err)
			}
			offset := deadline.Sub(before)
			if offset < tc.within-time.Minute || offset > tc.within+time.Minute {
				t.Fatalf("expected deadline about %s out, got %s", tc.within, offset)
			}
		})
	}
}

func TestAssessPriorityDefaultsToMedium(t *testing.T) {
	r := mustSucceed(t, run(t, assessPriority, automation.Payload{}, automation.RequestContext{}))
	if p, _ := r.Fields.String("priority"); p != "medium" {
		t.Fatalf("expected medium, got %s", p)
	}
}

func TestAssignVendorPicksFirstAndEstimatesCost(t *testing.T) {
	data := automation.Payload{
		"category": "plumbing",
		"priority": "emergency",
		"availableVendors": []any{
			map[string]any{"id": "v1", "name": "Ace Plumbing"},
			map[string]any{"id": "v2", "name": "Budget Pipes"},
		},
	}
	r := mustSucceed(t, run(t, assignVendor, data, automation.RequestContext{}))
	if id, _ := r.Fields.String("vendorId"); id != "v1" {
		t.Fatalf("expected first vendor, got %s", id)
	}
	if name, _ := r.Fields.String("vendorName"); name != "Ace Plumbing" {
		t.Fatalf("unexpected vendor name %s", name)
	}
	// plumbing base 150, emergency doubles it.
	if cost, _ := r.Fields.Float("estimatedCost"); cost != 300 {
		t.Fatalf("expected estimate 300, got %v", cost)
	}
}

func TestAssignVendorFailsWithoutCandidates(t *testing.T) {
	r := run(t, assignVendor, automation.Payload{"category": "plumbing"}, automation.RequestContext{})
	mustFail(t, r, "no vendors available")
}

func TestEstimateCostMultipliers(t *testing.T) {
	cases := []struct {
		category string
		priority string
		want     float64
	}{
		{"plumbing", "medium", 150},
		{"plumbing", "high", 225},
		{"electrical", "emergency", 400},
		{"cleaning", "low", 80},
		{"unknown", "medium", 100},
		{"unknown", "emergency", 200},
	}
	for _, tc := range cases {
		if got := estimateCost(tc.category, tc.priority); got != tc.want {
			t.Fatalf("estimateCost(%s, %s) = %v, want %v", tc.category, tc.priority, got, tc.want)
		}
	}
}

func TestCreateWorkOrder(t *testing.T) {
	r := mustSucceed(t, run(t, createWorkOrder,
		automation.Payload{"requestId": "r5", "vendorId": "v2"},
		automation.RequestContext{ActorID: "mgr1"}))
	if wo, _ := r.Fields.String("workOrderId"); wo != "wo_r5" {
		t.Fatalf("expected wo_r5, got %s", wo)
	}
	if by, _ := r.Fields.String("createdBy"); by != "mgr1" {
		t.Fatalf("expected actor on work order, got %s", by)
	}
}

func TestCreateWorkOrderRequiresRequestID(t *testing.T) {
	r := run(t, createWorkOrder, automation.Payload{"vendorId": "v2"}, automation.RequestContext{})
	mustFail(t, r, "requestId")
}

func TestScheduleMaintenanceWindows(t *testing.T) {
	cases := []struct {
		priority string
		startIn  time.Duration
	}{
		{"emergency", time.Hour},
		{"high", 24 * time.Hour},
		{"medium", 3 * 24 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.priority, func(t *testing.T) {
			before := time.Now().UTC()
			r := mustSucceed(t, run(t, scheduleMaintenance, automation.Payload{"priority": tc.priority}, automation.RequestContext{}))
			raw, _ := r.Fields.String("scheduledFor")
			scheduled, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				t.Fatalf("parse scheduledFor %q: %v", raw, err)
			}
			offset := scheduled.Sub(before)
			if offset < tc.startIn-time.Minute || offset > tc.startIn+time.Minute {
				t.Fatalf("expected visit about %s out, got %s", tc.startIn, offset)
			}
		})
	}
}

func TestSendMaintenanceNotifications(t *testing.T) {
	notifier := &fakeNotifier{}
	fn := sendMaintenanceNotifications(Deps{Notifier: notifier})

	r := mustSucceed(t, run(t, fn,
		automation.Payload{"requestId": "r9", "tenantId": "t4"},
		automation.RequestContext{ActorID: "u1"}))
	if r.Message != "tenant notified" {
		t.Fatalf("unexpected message %q", r.Message)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.sent))
	}
	sent := notifier.sent[0]
	if sent.id != "maintenance_r9" || sent.userID != "t4" {
		t.Fatalf("unexpected notification %+v", sent)
	}
	if sent.msg.Type != "maintenance_update" {
		t.Fatalf("unexpected message type %s", sent.msg.Type)
	}
}

func TestSendMaintenanceNotificationsSkipsWithoutTenant(t *testing.T) {
	notifier := &fakeNotifier{}
	fn := sendMaintenanceNotifications(Deps{Notifier: notifier})
	r := mustSucceed(t, run(t, fn, automation.Payload{"requestId": "r9"}, automation.RequestContext{}))
	if r.Message != "notification skipped" {
		t.Fatalf("unexpected message %q", r.Message)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("expected no notifications, got %d", len(notifier.sent))
	}
}

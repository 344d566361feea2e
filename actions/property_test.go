package actions

import (
	"errors"
	"testing"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/workflow"
)

func validUpload() automation.Payload {
	return automation.Payload{
		"name":       "Sea View Flat",
		"address":    "12 Ocean Dr, Miami, FL 33139, US",
		"type":       "apartment",
		"rentalType": "long_term",
	}
}

func TestValidatePropertyUploadRequiredFields(t *testing.T) {
	for _, field := range []string{"name", "address", "type", "rentalType"} {
		t.Run(field, func(t *testing.T) {
			data := validUpload()
			delete(data, field)
			mustFail(t, run(t, validatePropertyUpload, data, automation.RequestContext{}), field)
		})
	}
	mustSucceed(t, run(t, validatePropertyUpload, validUpload(), automation.RequestContext{}))
}

func TestValidatePropertyUploadStructuredAddress(t *testing.T) {
	data := validUpload()
	data["address"] = map[string]any{"street": "12 Ocean Dr", "city": "Miami", "country": "US"}
	mustSucceed(t, run(t, validatePropertyUpload, data, automation.RequestContext{}))

	data["address"] = map[string]any{"street": "12 Ocean Dr", "city": "Miami"}
	mustFail(t, run(t, validatePropertyUpload, data, automation.RequestContext{}), "invalid address")
}

func TestProcessPropertyImagesCountsQueuedImages(t *testing.T) {
	fn := processPropertyImages(automation.NewFmtLogger(nil))
	r := mustSucceed(t, run(t, fn, automation.Payload{
		"images": []any{"a.jpg", "b.jpg", "c.jpg"},
	}, automation.RequestContext{}))
	if n, _ := r.Fields.Int("processedImages"); n != 3 {
		t.Fatalf("expected 3 processed images, got %d", n)
	}

	r = mustSucceed(t, run(t, fn, automation.Payload{}, automation.RequestContext{}))
	if n, _ := r.Fields.Int("processedImages"); n != 0 {
		t.Fatalf("expected 0 images for empty payload, got %d", n)
	}
}

func TestGeocodePropertyAddress(t *testing.T) {
	geo := &fakeGeocoder{lat: 25.76, lng: -80.19}
	fn := geocodePropertyAddress(Deps{Geocoder: geo})

	r := mustSucceed(t, run(t, fn, validUpload(), automation.RequestContext{}))
	if lat, _ := r.Fields.Float("latitude"); lat != 25.76 {
		t.Fatalf("expected latitude, got %v", lat)
	}
	if lng, _ := r.Fields.Float("longitude"); lng != -80.19 {
		t.Fatalf("expected longitude, got %v", lng)
	}
}

func TestGeocodePropertyAddressFailures(t *testing.T) {
	fn := geocodePropertyAddress(Deps{Geocoder: &fakeGeocoder{err: errors.New("quota exceeded")}})
	mustFail(t, run(t, fn, validUpload(), automation.RequestContext{}), "quota exceeded")

	fn = geocodePropertyAddress(Deps{Geocoder: &fakeGeocoder{}})
	mustFail(t, run(t, fn, automation.Payload{}, automation.RequestContext{}), "no address")
}

func TestGeocodePropertyAddressSkipsWithoutProvider(t *testing.T) {
	fn := geocodePropertyAddress(Deps{})
	r := mustSucceed(t, run(t, fn, validUpload(), automation.RequestContext{}))
	if _, ok := r.Fields["latitude"]; ok {
		t.Fatal("expected no coordinates without a provider")
	}
}

func TestFlattenAddress(t *testing.T) {
	if got := flattenAddress(automation.Payload{"address": "already flat"}); got != "already flat" {
		t.Fatalf("string address must pass through, got %q", got)
	}
	got := flattenAddress(automation.Payload{"address": map[string]any{
		"street": "12 Ocean Dr", "city": "Miami", "state": "FL", "postalCode": "33139", "country": "US",
	}})
	if got != "12 Ocean Dr, Miami, FL 33139, US" {
		t.Fatalf("unexpected flattened address %q", got)
	}
	if got := flattenAddress(automation.Payload{"address": map[string]any{"country": "US"}}); got != "" {
		t.Fatalf("address without street and city must flatten to empty, got %q", got)
	}
	if got := flattenAddress(automation.Payload{}); got != "" {
		t.Fatalf("missing address must flatten to empty, got %q", got)
	}
}

func TestEnrichPropertyDataEstimates(t *testing.T) {
	r := mustSucceed(t, run(t, enrichPropertyData, automation.Payload{
		"area":        1000.0,
		"bedrooms":    2,
		"monthlyRent": 2500.0,
	}, automation.RequestContext{}))
	if v, _ := r.Fields.Float("marketValue"); v != 1000*200+2*50000 {
		t.Fatalf("unexpected market value %v", v)
	}
	if v, _ := r.Fields.Float("rentPerSqft"); v != 2.5 {
		t.Fatalf("unexpected rent per sqft %v", v)
	}
}

func TestEnrichPropertyDataSkipsWithoutArea(t *testing.T) {
	r := mustSucceed(t, run(t, enrichPropertyData, automation.Payload{"monthlyRent": 2500.0}, automation.RequestContext{}))
	if len(r.Fields) != 0 {
		t.Fatalf("expected no estimates without area, got %v", r.Fields)
	}
}

func TestCheckApprovalRequirements(t *testing.T) {
	fn := checkApprovalRequirements(automation.NewFmtLogger(nil))
	cases := []struct {
		name  string
		data  automation.Payload
		needs bool
	}{
		{"short term rental", automation.Payload{"rentalType": "short_term", "userHasApprovalRights": true}, true},
		{"high price", automation.Payload{"rentalType": "long_term", "price": 12000.0, "userHasApprovalRights": true}, true},
		{"no approval rights", automation.Payload{"rentalType": "long_term", "price": 900.0}, true},
		{"auto approved", automation.Payload{"rentalType": "long_term", "price": 900.0, "userHasApprovalRights": true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := mustSucceed(t, run(t, fn, tc.data, automation.RequestContext{}))
			needs, _ := r.Fields["needsApproval"].(bool)
			if needs != tc.needs {
				t.Fatalf("expected needsApproval=%v, got %v", tc.needs, needs)
			}
			wantNext := ""
			if tc.needs {
				wantNext = workflow.TerminalStep
			}
			if r.NextStep != wantNext {
				t.Fatalf("expected next step %q, got %q", wantNext, r.NextStep)
			}
		})
	}
}

func TestUpdateWebsiteListing(t *testing.T) {
	fn := updateWebsiteListing(automation.NewFmtLogger(nil))
	r := mustSucceed(t, run(t, fn, automation.Payload{"propertyId": "p3"}, automation.RequestContext{}))
	if done, _ := r.Fields["websiteUpdated"].(bool); !done {
		t.Fatalf("expected websiteUpdated flag, got %v", r.Fields)
	}
}

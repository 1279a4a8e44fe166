package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medbook/scheduling/internal/availability"
	"github.com/medbook/scheduling/internal/booking"
	redisclient "github.com/medbook/scheduling/internal/redis"
)

// testServer wires the router against the in-memory stores. Health
// endpoints need live Postgres/Redis and are not exercised here.
func testServer(t *testing.T) (*httptest.Server, *booking.Provider, *booking.Patient) {
	t.Helper()

	clock := func() time.Time { return time.Date(2025, 3, 10, 8, 0, 0, 0, time.Local) }
	ledger := booking.NewMemoryLedgerAt(clock)
	store := availability.NewMemoryStoreAt(clock)
	dir := booking.NewMemoryDirectory()
	engine := booking.NewEngineAt(ledger, store, dir, redisclient.NoopLocker{}, zerolog.Nop(), clock)

	provider, err := dir.CreateProvider(context.Background(), "Dr. Test", booking.SpecialtyCardiology)
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	patient, err := dir.CreatePatient(context.Background(), "Test Patient", nil)
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}

	router := NewRouter(RouterConfig{
		Engine: engine,
		Logger: zerolog.Nop(),
		Env:    "test",
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, provider, patient
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestCreateAppointmentEndpoint(t *testing.T) {
	srv, provider, patient := testServer(t)

	req := CreateAppointmentRequest{
		PatientID:  patient.ID.String(),
		ProviderID: provider.ID.String(),
		Date:       "2025-03-11",
		Slot:       "09:00",
		Urgent:     true,
	}

	resp := postJSON(t, srv.URL+"/appointments", req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var created AppointmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != "confirmed" || created.Slot != "09:00" || !created.Urgent {
		t.Errorf("unexpected response: %+v", created)
	}

	// Same slot again: conflict.
	resp2 := postJSON(t, srv.URL+"/appointments", req)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate booking status = %d, want 409", resp2.StatusCode)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(resp2.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errResp.Error != "slot_conflict" {
		t.Errorf("error = %q, want slot_conflict", errResp.Error)
	}
}

func TestCreateAppointmentEndpointLeadTime(t *testing.T) {
	srv, provider, patient := testServer(t)

	// The clock is pinned at 2025-03-10 08:00; 08:00 the same day is gone.
	resp := postJSON(t, srv.URL+"/appointments", CreateAppointmentRequest{
		PatientID:  patient.ID.String(),
		ProviderID: provider.ID.String(),
		Date:       "2025-03-10",
		Slot:       "08:00",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestWindowAndSlotsEndpoints(t *testing.T) {
	srv, provider, _ := testServer(t)

	windowURL := fmt.Sprintf("%s/providers/%s/windows", srv.URL, provider.ID)
	resp := postJSON(t, windowURL, WindowRequest{Date: "2025-03-11", Start: "09:00", End: "10:00"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("declare status = %d, want 201", resp.StatusCode)
	}

	// Declaring the identical window again reports the existing one.
	resp2 := postJSON(t, windowURL, WindowRequest{Date: "2025-03-11", Start: "09:00", End: "10:00"})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("duplicate declare status = %d, want 200", resp2.StatusCode)
	}

	slotsURL := fmt.Sprintf("%s/providers/%s/slots?date=2025-03-11", srv.URL, provider.ID)
	slotsResp, err := http.Get(slotsURL)
	if err != nil {
		t.Fatalf("get slots: %v", err)
	}
	defer slotsResp.Body.Close()
	if slotsResp.StatusCode != http.StatusOK {
		t.Fatalf("slots status = %d, want 200", slotsResp.StatusCode)
	}

	var slots SlotsResponse
	if err := json.NewDecoder(slotsResp.Body).Decode(&slots); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(slots.Slots) != 2 || slots.Slots[0] != "09:00" || slots.Slots[1] != "09:30" {
		t.Fatalf("slots = %v, want [09:00 09:30]", slots.Slots)
	}
}

func TestReactivateEndpointRoleGate(t *testing.T) {
	srv, provider, patient := testServer(t)

	resp := postJSON(t, srv.URL+"/appointments", CreateAppointmentRequest{
		PatientID:  patient.ID.String(),
		ProviderID: provider.ID.String(),
		Date:       "2025-03-11",
		Slot:       "09:00",
	})
	var created AppointmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()

	cancelResp := postJSON(t, fmt.Sprintf("%s/appointments/%s/cancel", srv.URL, created.ID), nil)
	cancelResp.Body.Close()
	if cancelResp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200", cancelResp.StatusCode)
	}

	// Without a role header the actor defaults to patient, which cannot
	// reactivate.
	reactURL := fmt.Sprintf("%s/appointments/%s/reactivate", srv.URL, created.ID)
	forbidden := postJSON(t, reactURL, nil)
	forbidden.Body.Close()
	if forbidden.StatusCode != http.StatusForbidden {
		t.Fatalf("patient reactivate status = %d, want 403", forbidden.StatusCode)
	}

	req, err := http.NewRequest(http.MethodPost, reactURL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Actor-Role", "admin")
	adminResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("admin reactivate: %v", err)
	}
	defer adminResp.Body.Close()
	if adminResp.StatusCode != http.StatusOK {
		t.Fatalf("admin reactivate status = %d, want 200", adminResp.StatusCode)
	}
}

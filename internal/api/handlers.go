package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medbook/scheduling/internal/availability"
	"github.com/medbook/scheduling/internal/booking"
	"github.com/medbook/scheduling/internal/calendar"
)

const dateLayout = "2006-01-02"

func actorRole(r *http.Request) booking.Role {
	switch booking.Role(r.Header.Get("X-Actor-Role")) {
	case booking.RoleProvider:
		return booking.RoleProvider
	case booking.RoleAdmin:
		return booking.RoleAdmin
	default:
		return booking.RolePatient
	}
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.Local)
}

func appointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:         a.ID,
		PatientID:  a.PatientID,
		ProviderID: a.ProviderID,
		Date:       a.Date.Format(dateLayout),
		Slot:       a.Slot.String(),
		Urgent:     a.Urgent,
		Status:     string(a.Status),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func windowResponse(w *availability.Window) WindowResponse {
	return WindowResponse{
		ID:         w.ID,
		ProviderID: w.ProviderID,
		Date:       w.Date.Format(dateLayout),
		Start:      w.Start.String(),
		End:        w.End.String(),
	}
}

func listSlotsHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}
		date, err := parseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := engine.ListAvailableSlots(r.Context(), providerID, date)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		out := make([]string, len(slots))
		for i, s := range slots {
			out[i] = s.String()
		}
		writeJSON(w, http.StatusOK, SlotsResponse{
			ProviderID: providerID,
			Date:       date.Format(dateLayout),
			Slots:      out,
		})
	}
}

func createAppointmentHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		slot, err := calendar.ParseTimeOfDay(req.Slot)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot", "slot must be HH:MM")
			return
		}

		appt, err := engine.CreateAppointment(r.Context(), patientID, providerID, date, slot, req.Urgent)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, appointmentResponse(appt))
	}
}

func getAppointmentHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := engine.GetAppointment(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func listAppointmentsHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var (
			appts []booking.Appointment
			err   error
		)

		switch {
		case q.Get("patient_id") != "":
			patientID, parseErr := uuid.Parse(q.Get("patient_id"))
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			limit := intQuery(q.Get("limit"), 20)
			offset := intQuery(q.Get("offset"), 0)
			appts, err = engine.ListPatientAppointments(r.Context(), patientID, limit, offset)
		case q.Get("provider_id") != "":
			providerID, parseErr := uuid.Parse(q.Get("provider_id"))
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			var date time.Time
			if q.Get("date") != "" {
				date, parseErr = parseDate(q.Get("date"))
				if parseErr != nil {
					writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
					return
				}
			}
			appts, err = engine.ListProviderAppointments(r.Context(), providerID, date)
		default:
			writeError(w, http.StatusBadRequest, "missing_filter", "patient_id or provider_id is required")
			return
		}

		if err != nil {
			handleDomainError(w, err)
			return
		}

		out := make([]AppointmentResponse, len(appts))
		for i := range appts {
			out[i] = appointmentResponse(&appts[i])
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func cancelAppointmentHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := engine.CancelAppointment(r.Context(), id, actorRole(r))
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func reactivateAppointmentHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := engine.ReactivateAppointment(r.Context(), id, actorRole(r))
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		slot, err := calendar.ParseTimeOfDay(req.Slot)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot", "slot must be HH:MM")
			return
		}

		appt, err := engine.RescheduleAppointment(r.Context(), id, providerID, date, slot)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func declareWindowHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		req, ok := decodeWindowRequest(w, r)
		if !ok {
			return
		}

		window, created, err := engine.DeclareWindow(r.Context(), providerID, req.date, req.start, req.end)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		status := http.StatusCreated
		if !created {
			// Exact duplicate: report the existing window.
			status = http.StatusOK
		}
		writeJSON(w, status, windowResponse(window))
	}
}

func removeWindowHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		req, ok := decodeWindowRequest(w, r)
		if !ok {
			return
		}

		if err := engine.RemoveWindow(r.Context(), providerID, req.date, req.start, req.end); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type windowParams struct {
	date       time.Time
	start, end calendar.TimeOfDay
}

func decodeWindowRequest(w http.ResponseWriter, r *http.Request) (windowParams, bool) {
	var req WindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return windowParams{}, false
	}

	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return windowParams{}, false
	}
	start, err := calendar.ParseTimeOfDay(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start", "start must be HH:MM")
		return windowParams{}, false
	}
	end, err := calendar.ParseTimeOfDay(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end", "end must be HH:MM")
		return windowParams{}, false
	}
	return windowParams{date: date, start: start, end: end}, true
}

func createProviderHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProviderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		p, err := engine.CreateProvider(r.Context(), req.Name, booking.Specialty(req.Specialty))
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ProviderResponse{
			ID:        p.ID,
			Name:      p.Name,
			Specialty: string(p.Specialty),
		})
	}
}

func listProvidersHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := engine.ListProviders(r.Context())
		if err != nil {
			handleDomainError(w, err)
			return
		}

		out := make([]ProviderResponse, len(providers))
		for i, p := range providers {
			out[i] = ProviderResponse{
				ID:        p.ID,
				Name:      p.Name,
				Specialty: string(p.Specialty),
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func deleteProviderHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		if err := engine.DeleteProvider(r.Context(), id); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func createPatientHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePatientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		p, err := engine.RegisterPatient(r.Context(), req.Name, req.Phone)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, PatientResponse{
			ID:    p.ID,
			Name:  p.Name,
			Phone: p.Phone,
		})
	}
}

func intQuery(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrUnknownProvider):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, booking.ErrUnknownPatient):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, availability.ErrWindowNotFound):
		writeError(w, http.StatusNotFound, "window_not_found", err.Error())
	case errors.Is(err, availability.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
	case errors.Is(err, booking.ErrInvalidSpecialty):
		writeError(w, http.StatusBadRequest, "invalid_specialty", err.Error())
	case errors.Is(err, booking.ErrRoleNotAllowed):
		writeError(w, http.StatusForbidden, "role_not_allowed", err.Error())
	case errors.Is(err, booking.ErrLeadTimeViolation):
		writeError(w, http.StatusUnprocessableEntity, "lead_time_violation", err.Error())
	case errors.Is(err, booking.ErrSlotNotOffered):
		writeError(w, http.StatusUnprocessableEntity, "slot_not_offered", err.Error())
	case errors.Is(err, booking.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, booking.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, booking.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	case errors.Is(err, booking.ErrNotCancelled):
		writeError(w, http.StatusConflict, "not_cancelled", err.Error())
	case errors.Is(err, booking.ErrProviderHasAppointments):
		writeError(w, http.StatusConflict, "provider_has_appointments", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

package handlers

import "net/http"

type Routes struct {
	Appointments   *AppointmentHandler
	Availability   *AvailabilityHandler
	Unavailability *UnavailabilityHandler
	Cases          *CaseHandler
}

func (rt Routes) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/appointments", rt.Appointments.Appointments)
	mux.HandleFunc("/api/v1/appointments/status", rt.Appointments.SetStatus)
	mux.HandleFunc("/api/v1/appointments/cancel", rt.Appointments.Cancel)

	mux.HandleFunc("/api/v1/availability", rt.Availability.Get)

	mux.HandleFunc("/api/v1/unavailability", rt.Unavailability.Periods)
	mux.HandleFunc("/api/v1/unavailability/update", rt.Unavailability.Update)
	mux.HandleFunc("/api/v1/unavailability/delete", rt.Unavailability.Delete)

	mux.HandleFunc("/api/v1/cases/match", rt.Cases.Match)
	mux.HandleFunc("/api/v1/cases/matches", rt.Cases.Matches)
	mux.HandleFunc("/api/v1/cases/assignment", rt.Cases.Assignment)
	mux.HandleFunc("/api/v1/cases/assign", rt.Cases.Assign)
	mux.HandleFunc("/api/v1/cases/unassign", rt.Cases.Unassign)
}

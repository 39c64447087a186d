package model

import "time"

const DefaultAppointmentType = "meeting"

type Appointment struct {
	ID            string
	Requester     Party
	RequesterName string
	Provider      Party
	ProviderName  string
	StartTime     time.Time
	EndTime       time.Time
	// Type is the meeting channel: call, video, meeting.
	Type        string
	Status      Status
	Description string
	CaseID      *int64
	// Override records that the requester booked over their own overlapping appointment.
	Override     bool
	CancelledAt  *time.Time
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Involves reports whether p is either side of the appointment.
func (a Appointment) Involves(p Party) bool {
	return a.Requester == p || a.Provider == p
}

// Counterpart returns the other side of the appointment relative to p.
func (a Appointment) Counterpart(p Party) (Party, string) {
	if a.Provider == p {
		return a.Requester, a.RequesterName
	}
	return a.Provider, a.ProviderName
}

func (a Appointment) LinkedTo(caseID int64) bool {
	return a.CaseID != nil && *a.CaseID == caseID
}

type Unavailability struct {
	ID        string
	LawyerID  int64
	StartTime time.Time
	EndTime   time.Time
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u Unavailability) Lawyer() Party { return Lawyer(u.LawyerID) }

type CaseMatch struct {
	ID            string
	CaseID        int64
	Provider      Party
	Score         float64
	Status        MatchStatus
	AppointmentID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Case is the read-only view of a legal case owned by the case repository.
type Case struct {
	ID             int64
	CitizenID      int64
	Title          string
	Number         string
	Specialization string
	NGOType        string
}

func (c Case) Citizen() Party { return Citizen(c.CitizenID) }

// Provider is a directory entry for a lawyer or NGO.
type Provider struct {
	Party Party
	Name  string
	Email string
	// Category is the lawyer specialization or the NGO type.
	Category string
	Approved bool
}

type Contact struct {
	Name  string
	Email string
}

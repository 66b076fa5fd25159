package model

import "time"

type Specialty string

const (
	SpecialtyPhysical     Specialty = "physical"
	SpecialtyOccupational Specialty = "occupational"
)

func (s Specialty) Valid() bool {
	return s == SpecialtyPhysical || s == SpecialtyOccupational
}

// AvailabilityWindow is one recurring weekly working window of a therapist.
// Minutes are offsets since midnight; StartMinute < EndMinute.
type AvailabilityWindow struct {
	TherapistID string
	Weekday     int // 0 = Sunday .. 6 = Saturday, matching time.Weekday
	StartMinute int
	EndMinute   int
}

type Therapist struct {
	ID        string
	Name      string
	Specialty Specialty
	Windows   []AvailabilityWindow
	CreatedAt time.Time
}

// WindowsOn filters the therapist's recurring windows to one weekday.
func (t Therapist) WindowsOn(weekday time.Weekday) []AvailabilityWindow {
	var out []AvailabilityWindow
	for _, w := range t.Windows {
		if w.Weekday == int(weekday) {
			out = append(out, w)
		}
	}
	return out
}

type MachineStatus string

const (
	MachineActive      MachineStatus = "active"
	MachineMaintenance MachineStatus = "maintenance"
	MachineRetired     MachineStatus = "retired"
)

func (s MachineStatus) Valid() bool {
	switch s {
	case MachineActive, MachineMaintenance, MachineRetired:
		return true
	}
	return false
}

// Machine is a bookable physical resource (cubicle, gym, laser unit...).
type Machine struct {
	ID             string
	Name           string
	Type           string
	Status         MachineStatus
	SessionMinutes *int // fixed session length, when the device imposes one
	CreatedAt      time.Time
}

func (m Machine) Bookable() bool { return m.Status == MachineActive }

type Patient struct {
	ID        string
	Cedula    string // public lookup key for unauthenticated booking flows
	Name      string
	Phone     string
	Email     string
	CreatedAt time.Time
}

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Appointment is one booked visit. DurationMinutes is always set; the
// engine rejects requests that cannot resolve a duration instead of
// guessing one downstream.
type Appointment struct {
	ID              string
	Date            time.Time // UTC midnight, day precision
	StartMinute     int
	DurationMinutes int
	PatientID       *string
	PatientName     string // denormalized fallback for walk-ins and legacy rows
	TherapistID     *string
	MachineID       *string
	Status          AppointmentStatus
	Notes           string
	BatchID         *string // groups a combined pair or a series
	CreatedAt       time.Time
}

func (a Appointment) EndMinute() int { return a.StartMinute + a.DurationMinutes }

func (a Appointment) Blocks() bool { return a.Status != StatusCancelled }

// Package museumapi is a client for the museum booking REST API.
package museumapi

import (
	"time"

	"github.com/wolfman30/museumbook/internal/booking"
)

// Role of an account on the booking API.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is an account as returned by the auth and admin endpoints.
type User struct {
	ID        string     `json:"_id,omitempty"`
	UserID    string     `json:"id,omitempty"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	IsActive  *bool      `json:"isActive,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// Identifier returns whichever id field the server populated.
func (u User) Identifier() string {
	if u.ID != "" {
		return u.ID
	}
	return u.UserID
}

// Credentials are posted to the login and register endpoints.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is the data payload of a successful login.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Appointment is a booking as stored by the API.
type Appointment struct {
	ID               string                    `json:"_id"`
	VisitorName      string                    `json:"visitorName"`
	VisitorEmail     string                    `json:"visitorEmail,omitempty"`
	VisitorPhone     string                    `json:"visitorPhone,omitempty"`
	IDNumber         string                    `json:"idNumber"`
	IDType           booking.IDType            `json:"idType"`
	Museum           booking.Museum            `json:"museum"`
	VisitDate        string                    `json:"visitDate"`
	TimeSlot         string                    `json:"timeSlot"`
	NumberOfVisitors int                       `json:"numberOfVisitors"`
	VisitorDetails   []booking.VisitorDetail   `json:"visitorDetails,omitempty"`
	Status           booking.AppointmentStatus `json:"status"`
	MuseumBookingID  string                    `json:"museumBookingId,omitempty"`
	ConfirmationCode string                    `json:"confirmationCode,omitempty"`
	CreatedAt        *time.Time                `json:"createdAt,omitempty"`
}

// MuseumResponse is the upstream museum's answer to a booking, relayed by the API.
type MuseumResponse struct {
	MuseumBookingID  string `json:"museumBookingId"`
	ConfirmationCode string `json:"confirmationCode"`
}

// CreateAppointmentResult is returned by POST /appointments.
type CreateAppointmentResult struct {
	Appointment    *Appointment    `json:"appointment,omitempty"`
	MuseumResponse *MuseumResponse `json:"museumResponse,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// Pagination metadata attached to list responses.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// AppointmentPage is one page of an appointment listing.
type AppointmentPage struct {
	Appointments []Appointment `json:"appointments"`
	Pagination   Pagination    `json:"pagination"`
}

// AppointmentQuery filters appointment listings. Zero values are omitted.
type AppointmentQuery struct {
	Page   int
	Limit  int
	Search string
	Status booking.AppointmentStatus
	Museum booking.Museum
	Date   string
}

// TimeSlot is a bookable interval with remaining capacity.
type TimeSlot struct {
	TimeSlot    string `json:"timeSlot"`
	Available   int    `json:"available"`
	Capacity    int    `json:"capacity,omitempty"`
	IsAvailable bool   `json:"isAvailable"`
}

// Period is a date range in MM-DD or YYYY-MM-DD form, as configured server side.
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// MuseumConfig holds per-museum capacity and release settings.
type MuseumConfig struct {
	ID                     string         `json:"_id,omitempty"`
	Museum                 booking.Museum `json:"museum"`
	Name                   string         `json:"name"`
	Address                string         `json:"address"`
	MaxDailyCapacity       int            `json:"maxDailyCapacity"`
	ExtendedCapacity       int            `json:"extendedCapacity"`
	SpecialPeriodCapacity  int            `json:"specialPeriodCapacity"`
	RegularTimeSlots       []string       `json:"regularTimeSlots"`
	ExtendedTimeSlots      []string       `json:"extendedTimeSlots"`
	SpecialPeriodTimeSlots []string       `json:"specialPeriodTimeSlots"`
	RegularPeriod          Period         `json:"regularPeriod"`
	ExtendedPeriod         Period         `json:"extendedPeriod"`
	SpecialPeriod          Period         `json:"specialPeriod"`
	BookingAdvanceDays     int            `json:"bookingAdvanceDays"`
	TicketReleaseTime      string         `json:"ticketReleaseTime"`
	IsActive               bool           `json:"isActive"`
}

// StatusBreakdown counts appointments per status.
type StatusBreakdown struct {
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Cancelled int `json:"cancelled"`
	Completed int `json:"completed"`
}

// DashboardStats is the admin dashboard summary.
type DashboardStats struct {
	TotalAppointments int             `json:"totalAppointments"`
	TodayAppointments int             `json:"todayAppointments"`
	TotalUsers        int             `json:"totalUsers"`
	StatusBreakdown   StatusBreakdown `json:"statusBreakdown"`
	MuseumBreakdown   map[string]int  `json:"museumBreakdown,omitempty"`
}

// Health is the admin health check payload.
type Health struct {
	Status    string            `json:"status"`
	Database  string            `json:"database,omitempty"`
	Uptime    float64           `json:"uptime,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
	Services  map[string]string `json:"services,omitempty"`
}

// ConfirmAllResult reports how many pending appointments were confirmed.
type ConfirmAllResult struct {
	Confirmed int `json:"confirmedCount"`
}

// UserQuery filters the admin user listing.
type UserQuery struct {
	Page   int
	Limit  int
	Search string
	Role   Role
}

// UserPage is one page of the admin user listing.
type UserPage struct {
	Users      []User     `json:"users"`
	Pagination Pagination `json:"pagination"`
}

// UserInput creates or updates an account.
type UserInput struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Role     Role   `json:"role,omitempty"`
	IsActive *bool  `json:"isActive,omitempty"`
}

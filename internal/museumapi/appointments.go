package museumapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/wolfman30/museumbook/internal/booking"
)

// Values encodes the non-zero filters as query parameters.
func (q AppointmentQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.Museum != "" {
		v.Set("museum", string(q.Museum))
	}
	if q.Date != "" {
		v.Set("date", q.Date)
	}
	return v
}

// ListAppointments lists the caller's appointments.
func (c *Client) ListAppointments(ctx context.Context, q AppointmentQuery) (*AppointmentPage, error) {
	return c.listAppointments(ctx, "/appointments", q)
}

// AdminAppointments lists every appointment. Admin only.
func (c *Client) AdminAppointments(ctx context.Context, q AppointmentQuery) (*AppointmentPage, error) {
	return c.listAppointments(ctx, "/admin/appointments", q)
}

func (c *Client) listAppointments(ctx context.Context, path string, q AppointmentQuery) (*AppointmentPage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, call{method: http.MethodGet, path: path, query: q.Values()}, &raw); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	page := &AppointmentPage{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, page); err != nil {
			return nil, fmt.Errorf("list appointments: decode: %w", err)
		}
		return page, nil
	}
	items, err := decodeList[Appointment](raw)
	if err != nil {
		return nil, fmt.Errorf("list appointments: decode: %w", err)
	}
	page.Appointments = items
	return page, nil
}

// GetAppointment fetches one appointment by id.
func (c *Client) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	path := "/appointments/" + url.PathEscape(id)
	appt, err := c.appointmentCall(ctx, call{method: http.MethodGet, path: path})
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// CreateAppointment books one record.
func (c *Client) CreateAppointment(ctx context.Context, rec booking.Record) (*CreateAppointmentResult, error) {
	var result CreateAppointmentResult
	if err := c.do(ctx, call{method: http.MethodPost, path: "/appointments", body: rec}, &result); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return &result, nil
}

// UpdateAppointment replaces an appointment's booking details.
func (c *Client) UpdateAppointment(ctx context.Context, id string, rec booking.Record) (*Appointment, error) {
	path := "/appointments/" + url.PathEscape(id)
	appt, err := c.appointmentCall(ctx, call{method: http.MethodPut, path: path, body: rec})
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	return appt, nil
}

// CancelAppointment cancels an appointment.
func (c *Client) CancelAppointment(ctx context.Context, id string) (*Appointment, error) {
	path := "/appointments/" + url.PathEscape(id) + "/cancel"
	appt, err := c.appointmentCall(ctx, call{method: http.MethodPatch, path: path})
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	return appt, nil
}

// UpdateAppointmentStatus moves an appointment to status. Admin only.
func (c *Client) UpdateAppointmentStatus(ctx context.Context, id string, status booking.AppointmentStatus) (*Appointment, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("update appointment status: unknown status %q", status)
	}
	path := "/admin/appointments/" + url.PathEscape(id) + "/status"
	body := map[string]string{"status": string(status)}
	appt, err := c.appointmentCall(ctx, call{method: http.MethodPatch, path: path, body: body})
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return appt, nil
}

// appointmentCall decodes either {appointment: {...}} or a bare appointment.
func (c *Client) appointmentCall(ctx context.Context, in call) (*Appointment, error) {
	var raw json.RawMessage
	if err := c.do(ctx, in, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &Appointment{}, nil
	}
	var wrapped struct {
		Appointment *Appointment `json:"appointment"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Appointment != nil {
		return wrapped.Appointment, nil
	}
	var appt Appointment
	if err := json.Unmarshal(raw, &appt); err != nil {
		return nil, fmt.Errorf("decode appointment: %w", err)
	}
	return &appt, nil
}

// TimeSlots returns the slots for a museum on a date (YYYY-MM-DD).
func (c *Client) TimeSlots(ctx context.Context, museum booking.Museum, date string) ([]TimeSlot, error) {
	q := url.Values{}
	q.Set("museum", string(museum))
	q.Set("date", date)

	var raw json.RawMessage
	if err := c.do(ctx, call{method: http.MethodGet, path: "/appointments/time-slots", query: q}, &raw); err != nil {
		return nil, fmt.Errorf("get time slots: %w", err)
	}
	slots, err := decodeList[TimeSlot](raw, "timeSlots", "slots")
	if err != nil {
		return nil, fmt.Errorf("get time slots: decode: %w", err)
	}
	return slots, nil
}

// MuseumConfigs returns the public museum configuration.
func (c *Client) MuseumConfigs(ctx context.Context) ([]MuseumConfig, error) {
	return c.museumConfigs(ctx, "/appointments/configs")
}

func (c *Client) museumConfigs(ctx context.Context, path string) ([]MuseumConfig, error) {
	var raw json.RawMessage
	if err := c.do(ctx, call{method: http.MethodGet, path: path}, &raw); err != nil {
		return nil, fmt.Errorf("get museum configs: %w", err)
	}
	configs, err := decodeList[MuseumConfig](raw, "configs", "museumConfigs")
	if err != nil {
		return nil, fmt.Errorf("get museum configs: decode: %w", err)
	}
	return configs, nil
}

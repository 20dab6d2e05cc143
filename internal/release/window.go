// Package release computes where "now" falls relative to the museum's daily
// ticket release.
package release

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	DefaultClock    = "17:00"
	DefaultWindow   = 5 * time.Minute
	DefaultTimezone = "Asia/Shanghai"

	timestampLayout = "2006-01-02 15:04:05"
)

// Phase of the daily release cycle.
type Phase string

const (
	BeforeRelease      Phase = "before_release"
	InReleaseWindow    Phase = "in_release_window"
	AfterReleaseWindow Phase = "after_release_window"
)

// Window is the daily release instant plus how long it stays open.
type Window struct {
	hour     int
	minute   int
	duration time.Duration
	loc      *time.Location
}

// New builds a window from an "HH:MM" clock, a duration and an IANA zone.
// Empty arguments take the defaults.
func New(clock string, duration time.Duration, timezone string) (*Window, error) {
	if strings.TrimSpace(clock) == "" {
		clock = DefaultClock
	}
	if duration <= 0 {
		duration = DefaultWindow
	}
	if strings.TrimSpace(timezone) == "" {
		timezone = DefaultTimezone
	}
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("release window: load timezone %q: %w", timezone, err)
	}
	return &Window{hour: hour, minute: minute, duration: duration, loc: loc}, nil
}

// Default returns the 17:00 Asia/Shanghai five minute window.
func Default() *Window {
	w, err := New(DefaultClock, DefaultWindow, DefaultTimezone)
	if err != nil {
		panic(err)
	}
	return w
}

// WithClock returns a copy released at clock instead, as set by a museum's
// ticketReleaseTime.
func (w *Window) WithClock(clock string) (*Window, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return nil, err
	}
	cp := *w
	cp.hour, cp.minute = hour, minute
	return &cp, nil
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(clock string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("release window: invalid clock %q, want HH:MM", clock)
	}
	hour, herr := strconv.Atoi(parts[0])
	minute, merr := strconv.Atoi(parts[1])
	if herr != nil || merr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("release window: invalid clock %q, want HH:MM", clock)
	}
	return hour, minute, nil
}

// Clock returns the release time as "HH:MM".
func (w *Window) Clock() string {
	return fmt.Sprintf("%02d:%02d", w.hour, w.minute)
}

func (w *Window) Duration() time.Duration { return w.duration }

func (w *Window) Location() *time.Location { return w.loc }

// releaseOn returns the release instant on the calendar day of t in the
// window's zone.
func (w *Window) releaseOn(t time.Time) time.Time {
	t = t.In(w.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), w.hour, w.minute, 0, 0, w.loc)
}

// Status reports the phase at now. Bookings made before the release are held
// and confirmed when it opens; once the window closes nothing can be booked
// until the next day's release.
func (w *Window) Status(now time.Time) Status {
	now = now.In(w.loc)
	today := w.releaseOn(now)
	tomorrow := w.releaseOn(now.AddDate(0, 0, 1))

	st := Status{
		CurrentTime: now,
		ReleaseTime: w.Clock(),
		Window:      w.duration,
	}
	switch {
	case now.Before(today):
		st.Phase = BeforeRelease
		st.CanBook = true
		st.NextRelease = today
		st.TimeUntilRelease = today.Sub(now)
	case now.Before(today.Add(w.duration)):
		st.Phase = InReleaseWindow
		st.CanBook = true
		st.NextRelease = tomorrow
	default:
		st.Phase = AfterReleaseWindow
		st.NextRelease = tomorrow
		st.TimeUntilRelease = tomorrow.Sub(now)
	}
	return st
}

// Status is a snapshot of the release cycle.
type Status struct {
	Phase            Phase
	CanBook          bool
	CurrentTime      time.Time
	ReleaseTime      string
	Window           time.Duration
	TimeUntilRelease time.Duration
	NextRelease      time.Time
}

// Notice is the user-facing explanation of the current phase.
func (s Status) Notice() string {
	minutes := int(s.Window / time.Minute)
	switch s.Phase {
	case BeforeRelease:
		return fmt.Sprintf("Booking pending: tickets are released at %s China time. Bookings are confirmed automatically when tickets become available.", s.ReleaseTime)
	case InReleaseWindow:
		return "Release window active: tickets are available now and bookings are confirmed immediately."
	case AfterReleaseWindow:
		return fmt.Sprintf("Release window closed: the %d-minute release window has passed. Try again tomorrow at %s China time.", minutes, s.ReleaseTime)
	default:
		return ""
	}
}

// Label is a short heading for the phase.
func (p Phase) Label() string {
	switch p {
	case BeforeRelease:
		return "Before Release"
	case InReleaseWindow:
		return "Release Window Active"
	case AfterReleaseWindow:
		return "Release Window Closed"
	default:
		return "Unknown Status"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status           Phase  `json:"status"`
		CanBook          bool   `json:"canBook"`
		CurrentTime      string `json:"currentTime"`
		ReleaseTime      string `json:"releaseTime"`
		TimeUntilRelease string `json:"timeUntilRelease"`
		NextRelease      string `json:"nextRelease"`
		Notice           string `json:"notice"`
	}{
		Status:           s.Phase,
		CanBook:          s.CanBook,
		CurrentTime:      s.CurrentTime.Format(timestampLayout),
		ReleaseTime:      s.ReleaseTime,
		TimeUntilRelease: FormatCountdown(s.TimeUntilRelease),
		NextRelease:      s.NextRelease.Format(timestampLayout),
		Notice:           s.Notice(),
	})
}

// FormatCountdown renders d as HH:MM:SS, truncating to whole seconds.
// Negative durations render as 00:00:00.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/museumbook/internal/booking"
	appconfig "github.com/wolfman30/museumbook/internal/config"
	"github.com/wolfman30/museumbook/internal/ingest"
	"github.com/wolfman30/museumbook/internal/museumapi"
	"github.com/wolfman30/museumbook/internal/session"
)

type fakeAPI struct {
	creates   int32
	cancelled int32
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	user := `{"_id":"u1","email":"ops@example.com","role":"user"}`
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds museumapi.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"message":"Invalid credentials"}`))
			return
		}
		fmt.Fprintf(w, `{"success":true,"data":{"token":"tok-1","user":%s}}`, user)
	})
	mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `{"success":true,"data":{"user":%s}}`, user)
	})
	mux.HandleFunc("POST /api/appointments", func(w http.ResponseWriter, r *http.Request) {
		var rec booking.Record
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		if strings.HasPrefix(rec.IDNumber, "999") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"success":false,"message":"Time slot is full"}`))
			return
		}
		n := atomic.AddInt32(&f.creates, 1)
		fmt.Fprintf(w, `{"success":true,"data":{"appointment":{"_id":"appt-%d"},"museumResponse":{"museumBookingId":"mb-%d","confirmationCode":"CODE%d"}}}`, n, n, n)
	})
	mux.HandleFunc("GET /api/appointments", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"appointments":[{"_id":"appt-1","visitorName":"张三","idNumber":"110101199001011234","museum":"main","visitDate":"2025-10-09","timeSlot":"16:30-18:00","status":"pending"}],"pagination":{"page":1,"limit":20,"total":1,"totalPages":1}}}`))
	})
	mux.HandleFunc("PATCH /api/appointments/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.cancelled, 1)
		fmt.Fprintf(w, `{"success":true,"data":{"appointment":{"_id":%q,"status":"cancelled"}}}`, r.PathValue("id"))
	})
	mux.HandleFunc("GET /api/appointments/time-slots", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "qin_han", r.URL.Query().Get("museum"))
		_, _ = w.Write([]byte(`{"success":true,"data":[{"timeSlot":"09:00-11:00","available":12,"capacity":50,"isAvailable":true}]}`))
	})
	mux.HandleFunc("GET /api/admin/dashboard", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	return mux
}

type harness struct {
	api    *fakeAPI
	cfg    *appconfig.Config
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	t.Setenv(passwordEnv, "")

	return &harness{
		api: api,
		cfg: &appconfig.Config{
			LogLevel:        "error",
			APIBaseURL:      srv.URL + "/api",
			APITimeout:      5 * time.Second,
			TokenFile:       filepath.Join(t.TempDir(), "token"),
			BulkConcurrency: 2,
			BulkMaxAttempts: 1,
			BookingLeadDays: 5,
			DefaultTimeSlot: booking.DefaultTimeSlot,
			ReleaseTime:     "17:00",
			ReleaseWindow:   5 * time.Minute,
			ReleaseTimezone: "Asia/Shanghai",
		},
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}
}

// exec runs one command with a fresh app, like a separate process would.
func (h *harness) exec(t *testing.T, stdin string, args ...string) error {
	t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()
	a := newApp(h.cfg, strings.NewReader(stdin), h.stdout, h.stderr)
	defer a.close()
	return a.exec(context.Background(), args)
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	require.NoError(t, h.exec(t, "secret\n", "login", "--email", "ops@example.com"))
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	err := h.exec(t, "", "fly")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "fly"`)
}

func TestHelpListsCommands(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.exec(t, "", "help"))
	assert.Contains(t, h.stderr.String(), "book")
	assert.Contains(t, h.stderr.String(), "serve")
}

func TestTemplate(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.exec(t, "", "template"))
	assert.True(t, strings.HasPrefix(h.stdout.String(), "visitorName,idNumber,idType,museum,visitDate,timeSlot"))

	out := filepath.Join(t.TempDir(), "simple.csv")
	require.NoError(t, h.exec(t, "", "template", "simple", "-o", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 3)
}

func TestParseMarksDuplicatesAndSkippedLines(t *testing.T) {
	h := newHarness(t)
	input := "张三,110101199001011234\n" +
		"just one field\n" +
		"李四,110101199001011234\n" +
		"王五,110101199001015678\n"
	require.NoError(t, h.exec(t, input, "parse", "-"))

	out := h.stdout.String()
	assert.Contains(t, out, "skipped:")
	flagged := 0
	for _, line := range strings.Split(out, "\n") {
		if fields := strings.Fields(line); len(fields) > 1 && fields[1] == "duplicate" {
			flagged++
		}
	}
	assert.Equal(t, 2, flagged, out)
	assert.Contains(t, out, "3 ready, 1 skipped, 2 duplicate (booking blocked)")
}

func TestParseMarksInvalidLines(t *testing.T) {
	h := newHarness(t)
	input := "张三,110101199001011234\n" +
		"李四,110101199001015678,passport,louvre,2025-10-09,14:30-16:30\n" +
		"visitorName,idNumber\n"
	require.NoError(t, h.exec(t, input, "parse", "-"))

	out := h.stdout.String()
	assert.Contains(t, out, `invalid: unknown museum "louvre" (want main, qin_han)`)
	assert.NotContains(t, out, "header row")
	assert.Contains(t, out, "2 ready, 1 skipped, 1 invalid")
}

func TestBookSkipsInvalidLines(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	input := "张三,110101199001011234\n李四,110101199001015678,id_card,main,10/09/2025,14:30-16:30\n"
	require.NoError(t, h.exec(t, input, "book", "-", "--stagger", "0"))
	assert.Contains(t, h.stderr.String(), "line 2 invalid:")
	assert.Contains(t, h.stderr.String(), "not YYYY-MM-DD")
	assert.EqualValues(t, 1, atomic.LoadInt32(&h.api.creates))
}

func TestParseRejectsWordDocuments(t *testing.T) {
	h := newHarness(t)
	err := h.exec(t, "", "parse", "visitors.docx")
	assert.ErrorIs(t, err, ingest.ErrUnsupportedFormat)
}

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t)

	err := h.exec(t, "", "whoami")
	assert.ErrorIs(t, err, session.ErrNotSignedIn)
	assert.True(t, needsLogin(err))

	require.Error(t, h.exec(t, "wrong\n", "login", "--email", "ops@example.com"))

	h.login(t)
	assert.Contains(t, h.stdout.String(), "Signed in as ops@example.com")
	token, err := os.ReadFile(h.cfg.TokenFile)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", strings.TrimSpace(string(token)))

	require.NoError(t, h.exec(t, "", "whoami"))
	assert.Contains(t, h.stdout.String(), "ops@example.com")

	require.NoError(t, h.exec(t, "", "logout"))
	_, err = os.Stat(h.cfg.TokenFile)
	assert.True(t, os.IsNotExist(err))
}

func TestBookRequiresLogin(t *testing.T) {
	h := newHarness(t)
	err := h.exec(t, "张三,110101199001011234\n", "book", "-")
	assert.ErrorIs(t, err, session.ErrNotSignedIn)
	assert.Zero(t, atomic.LoadInt32(&h.api.creates))
}

func TestBookWritesReceiptAndQRCodes(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	dir := t.TempDir()
	receipt := filepath.Join(dir, "receipt.pdf")
	qrDir := filepath.Join(dir, "qr")
	input := "张三,110101199001011234\n王五,110101199001015678\n"
	require.NoError(t, h.exec(t, input, "book", "-", "--receipt", receipt, "--qr-dir", qrDir, "--stagger", "0"))

	assert.EqualValues(t, 2, atomic.LoadInt32(&h.api.creates))
	assert.Contains(t, h.stdout.String(), "2 booked, 0 failed")
	assert.Contains(t, h.stderr.String(), "booked 2/2")

	pdf, err := os.ReadFile(receipt)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	pngs, err := filepath.Glob(filepath.Join(qrDir, "*.png"))
	require.NoError(t, err)
	assert.Len(t, pngs, 2)
}

func TestBookBlocksDuplicates(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	input := "张三,110101199001011234\n李四,110101199001011234\n"
	err := h.exec(t, input, "book", "-")
	assert.ErrorIs(t, err, ingest.ErrDuplicateEntries)
	assert.Contains(t, h.stderr.String(), "张三 (110101199001011234)")
	assert.Contains(t, h.stderr.String(), "李四 (110101199001011234)")
	assert.Zero(t, atomic.LoadInt32(&h.api.creates))
}

func TestBookReportsPartialFailure(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	input := "张三,110101199001011234\n赵六,999999199001011234\n"
	err := h.exec(t, input, "book", "-", "--json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 bookings failed")

	var result struct {
		Outcomes []struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		} `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &result))
	require.Len(t, result.Outcomes, 2)
	assert.True(t, result.Outcomes[0].Success)
	assert.False(t, result.Outcomes[1].Success)
	assert.Equal(t, "Time slot is full", result.Outcomes[1].Error)
	assert.Contains(t, h.stderr.String(), "Failed bookings:\n  赵六 (999999199001011234): Time slot is full")
}

func TestAppointmentsAndCancel(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	require.NoError(t, h.exec(t, "", "appointments", "--status", "pending"))
	assert.Contains(t, h.stdout.String(), "appt-1")
	assert.Contains(t, h.stdout.String(), "Page 1 of 1 (1 total)")

	require.Error(t, h.exec(t, "", "appointments", "--status", "lost"))
	require.Error(t, h.exec(t, "", "appointments", "--all"))

	require.NoError(t, h.exec(t, "", "cancel", "appt-1"))
	assert.Contains(t, h.stdout.String(), "Appointment appt-1 is now cancelled")
	assert.EqualValues(t, 1, atomic.LoadInt32(&h.api.cancelled))
}

func TestSlots(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.exec(t, "", "slots", "--museum", "qin_han", "--date", "2025-10-09"))
	assert.Contains(t, h.stdout.String(), "09:00-11:00")
	assert.Contains(t, h.stdout.String(), "2025-10-09")
	assert.Contains(t, h.stdout.String(), booking.QinHanMuseum.Address())

	require.Error(t, h.exec(t, "", "slots", "--museum", "louvre"))
}

func TestAdminRequiresAdminRole(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	err := h.exec(t, "", "admin", "dashboard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an administrator")
}

func TestReleaseJSON(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.exec(t, "", "release", "--json"))

	var status map[string]any
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &status))
	assert.Equal(t, "17:00", status["releaseTime"])
	assert.Contains(t, []any{"before_release", "in_release_window", "after_release_window"}, status["status"])
}

func TestGlobalFlagsOverrideConfig(t *testing.T) {
	h := newHarness(t)
	other := filepath.Join(t.TempDir(), "other-token")
	require.NoError(t, h.exec(t, "secret\n", "--token-file", other, "login", "--email", "ops@example.com"))
	_, err := os.Stat(other)
	assert.NoError(t, err)
}

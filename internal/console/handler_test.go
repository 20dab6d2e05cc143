package console

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/museumbook/internal/booking"
	"github.com/wolfman30/museumbook/internal/bulk"
	"github.com/wolfman30/museumbook/internal/ingest"
	"github.com/wolfman30/museumbook/internal/museumapi"
	"github.com/wolfman30/museumbook/internal/release"
	"github.com/wolfman30/museumbook/pkg/logging"
)

var fixedNow = time.Date(2025, 10, 4, 9, 30, 0, 0, time.UTC)

type stubCreator struct {
	calls int32
	fail  map[string]string
}

func (s *stubCreator) CreateAppointment(_ context.Context, rec booking.Record) (*museumapi.CreateAppointmentResult, error) {
	atomic.AddInt32(&s.calls, 1)
	if msg, ok := s.fail[rec.IDNumber]; ok {
		return nil, &museumapi.APIError{StatusCode: http.StatusConflict, Message: msg}
	}
	return &museumapi.CreateAppointmentResult{
		Appointment:    &museumapi.Appointment{ID: "appt-" + rec.IDNumber},
		MuseumResponse: &museumapi.MuseumResponse{MuseumBookingID: "MB-" + rec.IDNumber, ConfirmationCode: "C" + rec.IDNumber},
	}, nil
}

func newTestHandler(creator *stubCreator) *Handler {
	parser := ingest.NewParser().WithClock(func() time.Time { return fixedNow })
	submitter := bulk.NewSubmitter(creator, logging.Discard()).WithStagger(0)
	return NewHandler(parser, submitter, release.Default(), logging.Discard()).
		WithClock(func() time.Time { return fixedNow })
}

const sampleText = "张丹,510105197908271783\n\nnot a valid line\n王远游,512221197303150994\n"

func TestPreview_ReportsLinesAndDefaults(t *testing.T) {
	h := newTestHandler(&stubCreator{})
	req := httptest.NewRequest(http.MethodPost, "/ingest/preview", strings.NewReader(sampleText))
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Records, 2)
	assert.Equal(t, 2, resp.ReadyCount)
	assert.Equal(t, 1, resp.SkippedCount)
	assert.Equal(t, "2025-10-09", resp.VisitDate)
	require.Len(t, resp.Lines, 3)
	assert.Equal(t, "ready", resp.Lines[0].Status)
	assert.Equal(t, "skipped", resp.Lines[1].Status)
	assert.Equal(t, 3, resp.Lines[1].Line)
	assert.NotEmpty(t, resp.Lines[1].Reason)
	require.NotNil(t, resp.Lines[2].RecordIndex)
	assert.Equal(t, 1, *resp.Lines[2].RecordIndex)
}

func TestPreview_FlagsDuplicates(t *testing.T) {
	h := newTestHandler(&stubCreator{})
	body := "A,111\nB,222\nC,111\n"
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/preview", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []bool{true, false, true}, resp.DuplicateFlags)
	assert.Equal(t, []string{"A (111)", "C (111)"}, resp.Offenders)
	assert.Equal(t, "duplicate", resp.Lines[0].Status)
	assert.Equal(t, 1, resp.ReadyCount)
}

const invalidText = "A,111\n" +
	"B,222,passport,louvre,2025-10-09,14:30-16:30\n" +
	"C,333,drivers_license,main,2025-10-09,14:30-16:30,1,-2\n"

func TestPreview_MarksInvalidRecords(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(&stubCreator{}).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/preview", strings.NewReader(invalidText)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, 1, resp.ReadyCount)
	assert.Equal(t, 2, resp.SkippedCount)
	assert.Equal(t, 2, resp.InvalidCount)
	require.Len(t, resp.Lines, 3)
	assert.Equal(t, "ready", resp.Lines[0].Status)
	assert.Equal(t, "invalid", resp.Lines[1].Status)
	assert.Nil(t, resp.Lines[1].RecordIndex)
	assert.Contains(t, resp.Lines[1].Reason, `unknown museum "louvre"`)
	assert.Equal(t, "invalid", resp.Lines[2].Status)
	assert.Contains(t, resp.Lines[2].Reason, "unknown id type")
	assert.Contains(t, resp.Lines[2].Reason, "negative age")
}

func TestSubmit_InvalidRecordsAreNotBooked(t *testing.T) {
	creator := &stubCreator{}
	rec := httptest.NewRecorder()
	newTestHandler(creator).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/submit", strings.NewReader(invalidText)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Succeeded    int `json:"succeeded"`
		SkippedCount int `json:"skippedCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 2, resp.SkippedCount)
	assert.EqualValues(t, 1, atomic.LoadInt32(&creator.calls))
}

func TestPreview_RejectsWordUpload(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "visitors.DOCX")
	require.NoError(t, err)
	_, _ = part.Write([]byte("PK\x03\x04"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/ingest/preview", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newTestHandler(&stubCreator{}).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestPreview_MultipartCSV(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "visitors.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("\xEF\xBB\xBFA,111\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/ingest/preview", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newTestHandler(&stubCreator{}).Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "A", resp.Records[0].VisitorName)
}

func TestPreview_EmptyBody(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(&stubCreator{}).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/preview", strings.NewReader("  \n")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmit_BooksEveryRecord(t *testing.T) {
	creator := &stubCreator{fail: map[string]string{"512221197303150994": "Time slot is full"}}
	rec := httptest.NewRecorder()
	newTestHandler(creator).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/submit", strings.NewReader(sampleText)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		BatchID      string         `json:"batchId"`
		Outcomes     []bulk.Outcome `json:"outcomes"`
		Succeeded    int            `json:"succeeded"`
		Failed       int            `json:"failed"`
		SkippedCount int            `json:"skippedCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.BatchID)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, 1, resp.SkippedCount)
	require.Len(t, resp.Outcomes, 2)
	assert.Equal(t, "C510105197908271783", resp.Outcomes[0].ConfirmationCode)
	assert.Equal(t, "Time slot is full", resp.Outcomes[1].Error)
	assert.EqualValues(t, 2, atomic.LoadInt32(&creator.calls))
}

func TestSubmit_DuplicatesReturnConflictWithoutCalls(t *testing.T) {
	creator := &stubCreator{}
	rec := httptest.NewRecorder()
	newTestHandler(creator).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/submit", strings.NewReader("A,111\nB,111\n")))

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"A (111)", "B (111)"}, resp.Offenders)
	assert.Zero(t, atomic.LoadInt32(&creator.calls))
}

func TestSubmit_NoValidRecords(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(&stubCreator{}).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/submit", strings.NewReader("only-one-field\n")))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSubmit_PDFReceipt(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/ingest/submit", strings.NewReader("A,111\n"))
	req.Header.Set("Accept", "application/pdf")
	rec := httptest.NewRecorder()
	newTestHandler(&stubCreator{}).Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

func TestTemplate(t *testing.T) {
	h := newTestHandler(&stubCreator{})

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingest/templates/full", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "booking_template.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "visitorName,idNumber,idType,museum,visitDate,timeSlot,numberOfVisitors,age"))

	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingest/templates/simple.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "张丹")

	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingest/templates/word", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReleaseWindow(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(&stubCreator{}).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/release-window", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// 09:30 UTC is 17:30 in Shanghai
	assert.Equal(t, "after_release_window", resp["status"])
	assert.Equal(t, "17:00", resp["releaseTime"])
}

func TestConfirmationQR(t *testing.T) {
	h := newTestHandler(&stubCreator{})

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/confirmations/CNF123/qr.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/confirmations/unknown/qr.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func dialWS(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	conn, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ingest/ws", "", "http://localhost/")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocket_StreamsProgressThenResult(t *testing.T) {
	conn := dialWS(t, newTestHandler(&stubCreator{}))

	require.NoError(t, websocket.JSON.Send(conn, InboundFrame{Type: "submit", Text: "A,111\nB,222\nC,333\n"}))

	var progress []int
	for {
		var frame OutboundFrame
		require.NoError(t, websocket.JSON.Receive(conn, &frame))
		if frame.Type == "progress" {
			assert.Equal(t, 3, frame.Total)
			progress = append(progress, frame.Done)
			continue
		}
		require.Equal(t, "result", frame.Type, frame.Error)
		require.NotNil(t, frame.Result)
		assert.Equal(t, 3, frame.Result.Succeeded)
		break
	}
	assert.Equal(t, []int{1, 2, 3}, progress)
}

func TestWebSocket_DuplicateAndPing(t *testing.T) {
	conn := dialWS(t, newTestHandler(&stubCreator{}))

	require.NoError(t, websocket.JSON.Send(conn, InboundFrame{Type: "ping"}))
	var pong OutboundFrame
	require.NoError(t, websocket.JSON.Receive(conn, &pong))
	assert.Equal(t, "pong", pong.Type)

	require.NoError(t, websocket.JSON.Send(conn, InboundFrame{Type: "submit", Text: "A,111\nB,111\n"}))
	var frame OutboundFrame
	require.NoError(t, websocket.JSON.Receive(conn, &frame))
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, []string{"A (111)", "B (111)"}, frame.Offenders)

	require.NoError(t, websocket.JSON.Send(conn, InboundFrame{Type: "preview", Text: "A,111\n"}))
	require.NoError(t, websocket.JSON.Receive(conn, &frame))
	assert.Equal(t, "preview", frame.Type)
	require.NotNil(t, frame.Preview)
	assert.Equal(t, 1, frame.Preview.ReadyCount)
}

// Package console serves the local booking console: preview and submit
// visitor lists over HTTP, with a websocket stream for live progress.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/museumbook/internal/booking"
	"github.com/wolfman30/museumbook/internal/bulk"
	"github.com/wolfman30/museumbook/internal/ingest"
	"github.com/wolfman30/museumbook/internal/museumapi"
	"github.com/wolfman30/museumbook/internal/observability/metrics"
	"github.com/wolfman30/museumbook/internal/release"
	"github.com/wolfman30/museumbook/internal/tickets"
	"github.com/wolfman30/museumbook/pkg/logging"
)

// BatchSubmitter books a batch. *bulk.Submitter satisfies it.
type BatchSubmitter interface {
	SubmitWithProgress(ctx context.Context, records []booking.Record, progress func(done, total int)) (*bulk.Result, error)
}

// Handler serves the console endpoints.
type Handler struct {
	parser    *ingest.Parser
	submitter BatchSubmitter
	window    *release.Window
	metrics   *metrics.BulkMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewHandler creates a console handler. window may be nil for the default
// 17:00 Asia/Shanghai release.
func NewHandler(parser *ingest.Parser, submitter BatchSubmitter, window *release.Window, logger *logging.Logger) *Handler {
	if parser == nil {
		parser = ingest.NewParser()
	}
	if window == nil {
		window = release.Default()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		parser:    parser,
		submitter: submitter,
		window:    window,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *Handler) WithMetrics(m *metrics.BulkMetrics) *Handler {
	h.metrics = m
	return h
}

func (h *Handler) WithClock(now func() time.Time) *Handler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/ingest", func(r chi.Router) {
		r.Post("/preview", h.Preview)
		r.Post("/submit", h.Submit)
		r.Get("/templates/{kind}", h.Template)
		r.Get("/ws", h.HandleWebSocket)
	})
	r.Get("/release-window", h.ReleaseWindow)
	r.Get("/confirmations/{code}/qr.png", h.ConfirmationQR)
	return r
}

// LineView is one input line as shown in the preview table.
type LineView struct {
	Line        int    `json:"line"`
	Raw         string `json:"raw"`
	Status      string `json:"status"` // ready, duplicate, invalid or skipped
	Reason      string `json:"reason,omitempty"`
	RecordIndex *int   `json:"recordIndex,omitempty"`
}

// PreviewResponse is returned by POST /ingest/preview.
type PreviewResponse struct {
	Records        []booking.Record `json:"records"`
	Lines          []LineView       `json:"lines"`
	DuplicateFlags []bool           `json:"duplicateFlags"`
	Offenders      []string         `json:"offenders,omitempty"`
	ReadyCount     int              `json:"readyCount"`
	SkippedCount   int              `json:"skippedCount"`
	InvalidCount   int              `json:"invalidCount"`
	VisitDate      string           `json:"defaultVisitDate"`
	TimeSlot       string           `json:"defaultTimeSlot"`
}

// SubmitResponse is returned by POST /ingest/submit.
type SubmitResponse struct {
	*bulk.Result
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	SkippedCount int `json:"skippedCount"`
}

type errorResponse struct {
	Error     string   `json:"error"`
	Offenders []string `json:"offenders,omitempty"`
}

func (h *Handler) preview(text string) (*ingest.Report, PreviewResponse) {
	report := h.parser.Parse(text)
	records := report.Records()
	dups := ingest.DetectDuplicates(records)
	defaults := h.parser.Defaults()

	resp := PreviewResponse{
		Records:        records,
		Lines:          make([]LineView, 0, len(report.Lines)),
		DuplicateFlags: dups.Flags,
		SkippedCount:   report.SkippedCount(),
		InvalidCount:   report.InvalidCount(),
		VisitDate:      defaults.VisitDate,
		TimeSlot:       defaults.TimeSlot,
	}
	if dups.HasDuplicates() {
		resp.Offenders = dups.Offenders()
	}
	idx := 0
	for _, l := range report.Lines {
		view := LineView{Line: l.Line, Raw: l.Raw}
		if !l.OK() {
			view.Status = "skipped"
			if l.Invalid {
				view.Status = "invalid"
			}
			view.Reason = l.SkipReason
			resp.Lines = append(resp.Lines, view)
			continue
		}
		i := idx
		view.RecordIndex = &i
		view.Status = "ready"
		if dups.Flags[i] {
			view.Status = "duplicate"
		} else {
			resp.ReadyCount++
		}
		resp.Lines = append(resp.Lines, view)
		idx++
	}
	return report, resp
}

// Preview parses the body and returns per-line status without booking.
// POST /ingest/preview
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	text, err := readInput(r)
	if err != nil {
		h.writeInputError(w, err)
		return
	}
	report, resp := h.preview(text)
	h.metrics.ObserveSkippedLines(report.SkippedCount())
	writeJSON(w, http.StatusOK, resp)
}

// Submit parses the body and books every record. With Accept:
// application/pdf the response is a PDF receipt instead of JSON.
// POST /ingest/submit
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.submitter == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "booking is not configured"})
		return
	}
	text, err := readInput(r)
	if err != nil {
		h.writeInputError(w, err)
		return
	}
	report := h.parser.Parse(text)
	h.metrics.ObserveSkippedLines(report.SkippedCount())

	result, err := h.submitter.SubmitWithProgress(r.Context(), report.Records(), nil)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	if wantsPDF(r) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=receipt-%s.pdf", result.BatchID))
		if err := tickets.WriteReceipt(w, result.BatchID, result.Outcomes); err != nil {
			h.logger.Error("failed to render receipt", "batch_id", result.BatchID, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{
		Result:       result,
		Succeeded:    result.Succeeded(),
		Failed:       result.Failed(),
		SkippedCount: report.SkippedCount(),
	})
}

// Template downloads a CSV template.
// GET /ingest/templates/{kind}
func (h *Handler) Template(w http.ResponseWriter, r *http.Request) {
	kind := ingest.TemplateKind(strings.TrimSuffix(chi.URLParam(r, "kind"), ".csv"))
	if kind != ingest.FullTemplate && kind != ingest.SimpleTemplate {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown template"})
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+kind.Filename())
	if err := ingest.WriteTemplate(w, kind); err != nil {
		h.logger.Error("failed to write template", "kind", kind, "error", err)
	}
}

// ReleaseWindow reports the ticket release phase.
// GET /release-window
func (h *Handler) ReleaseWindow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.window.Status(h.now()))
}

// ConfirmationQR renders a confirmation code as a QR PNG.
// GET /confirmations/{code}/qr.png
func (h *Handler) ConfirmationQR(w http.ResponseWriter, r *http.Request) {
	png, err := tickets.QRCode(chi.URLParam(r, "code"))
	if errors.Is(err, tickets.ErrNoCode) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no confirmation code"})
		return
	}
	if err != nil {
		h.logger.Error("failed to render qr code", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to render qr code"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(png)
}

func (h *Handler) writeInputError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{Error: err.Error()})
	case errors.Is(err, errEmptyInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		h.logger.Warn("failed to read ingest input", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read input"})
	}
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, err error) {
	var dupErr *ingest.DuplicateError
	switch {
	case errors.As(err, &dupErr):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Offenders: dupErr.Report.Offenders()})
	case errors.Is(err, bulk.ErrNoRecords):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "no valid records found"})
	case errors.Is(err, museumapi.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("bulk submission failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "bulk submission failed"})
	}
}

var errEmptyInput = errors.New("input is empty")

// readInput returns the text of a multipart "file" upload or of the raw
// request body. A raw body may name its source file with ?filename= so the
// Word-document check applies.
func readInput(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		text string
		err  error
	)
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(ingest.MaxSourceBytes); err != nil {
			return "", fmt.Errorf("parse upload: %w", err)
		}
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			if pasted := r.FormValue("text"); pasted != "" {
				return pasted, nil
			}
			return "", fmt.Errorf("read upload: %w", ferr)
		}
		defer file.Close()
		text, err = ingest.ReadText(header.Filename, file)
	} else {
		text, err = ingest.ReadText(r.URL.Query().Get("filename"), r.Body)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errEmptyInput
	}
	return text, nil
}

func wantsPDF(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/pdf")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

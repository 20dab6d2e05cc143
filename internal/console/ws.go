package console

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/museumbook/internal/bulk"
	"github.com/wolfman30/museumbook/internal/ingest"
)

// InboundFrame is what the console page sends.
type InboundFrame struct {
	Type string `json:"type"` // "preview", "submit", "ping"
	Text string `json:"text"`
}

// OutboundFrame is what the console streams back.
type OutboundFrame struct {
	Type      string           `json:"type"` // "preview", "progress", "result", "error", "pong"
	Done      int              `json:"done,omitempty"`
	Total     int              `json:"total,omitempty"`
	Preview   *PreviewResponse `json:"preview,omitempty"`
	Result    *SubmitResponse  `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	Offenders []string         `json:"offenders,omitempty"`
}

// HandleWebSocket upgrades to a websocket. Each "submit" frame books the
// pasted text and streams a progress frame per record, then a result frame.
// GET /ingest/ws
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	h.logger.Debug("console: websocket opened", "remote_ip", r.RemoteAddr)
	for {
		var frame InboundFrame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			h.logger.Debug("console: websocket closed", "error", err)
			return
		}

		switch frame.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, OutboundFrame{Type: "pong"})
		case "preview":
			if strings.TrimSpace(frame.Text) == "" {
				_ = websocket.JSON.Send(conn, OutboundFrame{Type: "error", Error: errEmptyInput.Error()})
				continue
			}
			report, preview := h.preview(frame.Text)
			h.metrics.ObserveSkippedLines(report.SkippedCount())
			_ = websocket.JSON.Send(conn, OutboundFrame{Type: "preview", Preview: &preview})
		case "submit":
			if err := h.submitWS(conn, r, frame.Text); err != nil {
				h.logger.Debug("console: websocket send failed", "error", err)
				return
			}
		default:
			_ = websocket.JSON.Send(conn, OutboundFrame{Type: "error", Error: "unknown frame type " + frame.Type})
		}
	}
}

// submitWS returns an error only when the connection is no longer writable.
func (h *Handler) submitWS(conn *websocket.Conn, r *http.Request, text string) error {
	if h.submitter == nil {
		return websocket.JSON.Send(conn, OutboundFrame{Type: "error", Error: "booking is not configured"})
	}
	if strings.TrimSpace(text) == "" {
		return websocket.JSON.Send(conn, OutboundFrame{Type: "error", Error: errEmptyInput.Error()})
	}
	report := h.parser.Parse(text)
	h.metrics.ObserveSkippedLines(report.SkippedCount())

	var sendErr error
	result, err := h.submitter.SubmitWithProgress(r.Context(), report.Records(), func(done, total int) {
		if sendErr != nil {
			return
		}
		sendErr = websocket.JSON.Send(conn, OutboundFrame{Type: "progress", Done: done, Total: total})
	})
	if err != nil {
		out := OutboundFrame{Type: "error", Error: err.Error()}
		var dupErr *ingest.DuplicateError
		if errors.As(err, &dupErr) {
			out.Offenders = dupErr.Report.Offenders()
		}
		if errors.Is(err, bulk.ErrNoRecords) {
			out.Error = "no valid records found"
		}
		return websocket.JSON.Send(conn, out)
	}
	if sendErr != nil {
		return sendErr
	}
	return websocket.JSON.Send(conn, OutboundFrame{Type: "result", Result: &SubmitResponse{
		Result:       result,
		Succeeded:    result.Succeeded(),
		Failed:       result.Failed(),
		SkippedCount: report.SkippedCount(),
	}})
}

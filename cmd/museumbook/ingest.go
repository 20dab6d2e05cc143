package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wolfman30/museumbook/cmd/mainconfig"
	"github.com/wolfman30/museumbook/internal/app/bootstrap"
	"github.com/wolfman30/museumbook/internal/bulk"
	"github.com/wolfman30/museumbook/internal/ingest"
	"github.com/wolfman30/museumbook/internal/tickets"
)

func templateCmd(ctx context.Context, a *app, args []string) error {
	flagSet := a.newFlagSet("template")
	output := flagSet.StringP("output", "o", "", "write to this file instead of stdout")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	kind := ingest.FullTemplate
	if flagSet.NArg() > 0 {
		kind = ingest.TemplateKind(flagSet.Arg(0))
	}

	if *output == "" {
		return ingest.WriteTemplate(a.stdout, kind)
	}
	f, err := os.Create(*output)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	if err := ingest.WriteTemplate(f, kind); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	fmt.Fprintf(a.stderr, "Wrote %s template to %s\n", kind, *output)
	return nil
}

// loadSource reads a path, "-" or an s3:// URL. The S3 client is only built
// for s3 sources.
func (a *app) loadSource(ctx context.Context, source string) (string, error) {
	loader := &ingest.Loader{Stdin: a.stdin}
	if strings.HasPrefix(source, "s3://") {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, a.cfg)
		if err != nil {
			return "", fmt.Errorf("load aws config: %w", err)
		}
		loader.S3 = mainconfig.NewS3Client(awsCfg, a.cfg)
	}
	return loader.Load(ctx, source)
}

func (a *app) parseSource(ctx context.Context, source string) (*ingest.Report, error) {
	text, err := a.loadSource(ctx, source)
	if err != nil {
		return nil, err
	}
	return bootstrap.BuildParser(a.cfg).Parse(text), nil
}

func parseCmd(ctx context.Context, a *app, args []string) error {
	flagSet := a.newFlagSet("parse")
	asJSON := flagSet.Bool("json", false, "print records as JSON")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("parse: expected one source (path, - or s3://bucket/key)")
	}

	report, err := a.parseSource(ctx, flagSet.Arg(0))
	if err != nil {
		return err
	}
	records := report.Records()
	dups := ingest.DetectDuplicates(records)

	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tSTATUS\tNAME\tID NUMBER\tID TYPE\tMUSEUM\tDATE\tSLOT")
	recIdx := 0
	for _, line := range report.Lines {
		if !line.OK() {
			fmt.Fprintf(w, "%d\t%s: %s\t%s\t\t\t\t\t\n", line.Line, lineStatus(line), line.SkipReason, truncate(line.Raw, 30))
			continue
		}
		status := "ready"
		if dups.Flags[recIdx] {
			status = "duplicate"
		}
		rec := line.Record
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			line.Line, status, rec.VisitorName, rec.IDNumber, rec.IDType, rec.Museum, rec.VisitDate, rec.TimeSlot)
		recIdx++
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "\n%d ready, %d skipped", len(records), report.SkippedCount())
	if n := report.InvalidCount(); n > 0 {
		fmt.Fprintf(a.stdout, ", %d invalid", n)
	}
	if dups.HasDuplicates() {
		fmt.Fprintf(a.stdout, ", %d duplicate (booking blocked)", len(dups.Offenders()))
	}
	fmt.Fprintln(a.stdout)
	return nil
}

func bookCmd(ctx context.Context, a *app, args []string) error {
	flagSet := a.newFlagSet("book")
	concurrency := flagSet.Int("concurrency", a.cfg.BulkConcurrency, "maximum bookings in flight")
	stagger := flagSet.Duration("stagger", a.cfg.BulkStagger, "minimum gap between dispatches")
	attempts := flagSet.Int("max-attempts", a.cfg.BulkMaxAttempts, "attempts per record for transient failures")
	receipt := flagSet.String("receipt", "", "write a PDF receipt to this path")
	qrDir := flagSet.String("qr-dir", "", "write one QR code PNG per confirmation code into this directory")
	asJSON := flagSet.Bool("json", false, "print the batch result as JSON")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("book: expected one source (path, - or s3://bucket/key)")
	}
	a.cfg.BulkConcurrency = *concurrency
	a.cfg.BulkStagger = *stagger
	a.cfg.BulkMaxAttempts = *attempts

	report, err := a.parseSource(ctx, flagSet.Arg(0))
	if err != nil {
		return err
	}
	for _, line := range report.Skipped() {
		fmt.Fprintf(a.stderr, "line %d %s: %s\n", line.Line, lineStatus(line), line.SkipReason)
	}
	records := report.Records()
	if len(records) == 0 {
		return errors.New("book: no bookable lines found")
	}

	rt, err := a.signedIn(ctx)
	if err != nil {
		return err
	}
	rt.Metrics.ObserveSkippedLines(report.SkippedCount())
	if status := rt.Window.Status(time.Now()); !status.CanBook {
		fmt.Fprintln(a.stderr, status.Notice())
	}

	result, err := rt.Submitter.SubmitWithProgress(ctx, records, func(done, total int) {
		fmt.Fprintf(a.stderr, "\rbooked %d/%d", done, total)
		if done == total {
			fmt.Fprintln(a.stderr)
		}
	})
	if err != nil {
		var dupErr *ingest.DuplicateError
		if errors.As(err, &dupErr) {
			fmt.Fprintln(a.stderr, "Duplicate entries:")
			for _, label := range dupErr.Report.Offenders() {
				fmt.Fprintf(a.stderr, "  %s\n", label)
			}
		}
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else if err := printOutcomes(a.stdout, result); err != nil {
		return err
	}
	if failures := result.Failures(); len(failures) > 0 {
		fmt.Fprintln(a.stderr, "Failed bookings:")
		for _, o := range failures {
			fmt.Fprintf(a.stderr, "  %s: %s\n", o.Record.Label(), o.Error)
		}
	}

	if *qrDir != "" {
		if err := writeQRCodes(*qrDir, result.Successes()); err != nil {
			return err
		}
	}
	if *receipt != "" {
		if err := writeReceipt(*receipt, result); err != nil {
			return err
		}
		fmt.Fprintf(a.stderr, "Wrote receipt to %s\n", *receipt)
	}

	if result.Cancelled {
		return fmt.Errorf("book: interrupted after %d of %d bookings", result.Succeeded(), len(result.Outcomes))
	}
	if n := result.Failed(); n > 0 {
		return fmt.Errorf("book: %d of %d bookings failed", n, len(result.Outcomes))
	}
	return nil
}

func lineStatus(line ingest.LineResult) string {
	if line.Invalid {
		return "invalid"
	}
	return "skipped"
}

func printOutcomes(out io.Writer, result *bulk.Result) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tID NUMBER\tRESULT\tAPPOINTMENT\tCONFIRMATION\tERROR")
	for _, o := range result.Outcomes {
		state := "booked"
		if !o.Success {
			state = "failed"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.Index+1, o.Record.VisitorName, o.Record.IDNumber, state,
			o.AppointmentID, o.ConfirmationCode, o.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nBatch %s: %d booked, %d failed\n", result.BatchID, result.Succeeded(), result.Failed())
	return nil
}

func writeQRCodes(dir string, successes []bulk.Outcome) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create qr dir: %w", err)
	}
	for _, o := range successes {
		png, err := tickets.QRCode(o.ConfirmationCode)
		if errors.Is(err, tickets.ErrNoCode) {
			continue
		}
		if err != nil {
			return err
		}
		name := filepath.Join(dir, filepath.Base(o.ConfirmationCode)+".png")
		if err := os.WriteFile(name, png, 0o644); err != nil {
			return fmt.Errorf("write qr code: %w", err)
		}
	}
	return nil
}

func writeReceipt(path string, result *bulk.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create receipt: %w", err)
	}
	if err := tickets.WriteReceipt(f, result.BatchID, result.Outcomes); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

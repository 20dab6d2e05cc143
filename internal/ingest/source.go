package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MaxSourceBytes caps how much text a single ingest source may supply.
const MaxSourceBytes = 10 << 20

// ErrUnsupportedFormat is returned for binary document uploads.
var ErrUnsupportedFormat = errors.New("ingest: Word files (.doc/.docx) are not supported, save as CSV or text first")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CheckExtension rejects binary document formats by file name, before any
// content is read.
func CheckExtension(name string) error {
	switch strings.ToLower(path.Ext(name)) {
	case ".doc", ".docx":
		return ErrUnsupportedFormat
	}
	return nil
}

// ReadText reads a named upload as raw text. The name is checked first so a
// rejected upload is never read.
func ReadText(name string, r io.Reader) (string, error) {
	if err := CheckExtension(name); err != nil {
		return "", err
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxSourceBytes+1))
	if err != nil {
		return "", fmt.Errorf("ingest: read %s: %w", name, err)
	}
	if len(data) > MaxSourceBytes {
		return "", fmt.Errorf("ingest: %s exceeds %d bytes", name, MaxSourceBytes)
	}
	return string(bytes.TrimPrefix(data, utf8BOM)), nil
}

// ObjectGetter is the slice of the S3 API the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loader resolves an ingest source: "-" for stdin, "s3://bucket/key" for an
// S3 object, anything else is a local path.
type Loader struct {
	Stdin io.Reader
	S3    ObjectGetter
}

// Load returns the raw text of source.
func (l *Loader) Load(ctx context.Context, source string) (string, error) {
	switch {
	case source == "-":
		if l.Stdin == nil {
			return "", errors.New("ingest: stdin not available")
		}
		return ReadText("stdin.txt", l.Stdin)
	case strings.HasPrefix(source, "s3://"):
		return l.loadS3(ctx, source)
	default:
		if err := CheckExtension(source); err != nil {
			return "", err
		}
		f, err := os.Open(source)
		if err != nil {
			return "", fmt.Errorf("ingest: open %s: %w", source, err)
		}
		defer f.Close()
		return ReadText(source, f)
	}
}

func (l *Loader) loadS3(ctx context.Context, source string) (string, error) {
	bucket, key, ok := strings.Cut(strings.TrimPrefix(source, "s3://"), "/")
	if !ok || bucket == "" || key == "" {
		return "", fmt.Errorf("ingest: malformed s3 url %q", source)
	}
	if err := CheckExtension(key); err != nil {
		return "", err
	}
	if l.S3 == nil {
		return "", errors.New("ingest: s3 client not configured")
	}
	out, err := l.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("ingest: get s3 object: %w", err)
	}
	defer out.Body.Close()
	return ReadText(key, out.Body)
}

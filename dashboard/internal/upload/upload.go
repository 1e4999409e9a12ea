// Package upload sends operator-selected files to the service's object
// storage endpoint.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync/atomic"

	"github.com/gabriel-vasile/mimetype"

	"github.com/delineate/dashboard/dashboard/internal/apiclient"
)

const (
	Path      = "/v1/upload"
	FormField = "file"

	MsgNoFile    = "Please select a file first"
	MsgRejected  = "Upload failed"
	MsgTransport = "Failed to upload file. Check network/backend."
)

// sniffLen is how much of the file is read up front for content detection.
const sniffLen = 3072

// Status is the uploader's display state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the service's response to a successful upload.
type Result struct {
	Filename string `json:"filename"`
	S3Key    string `json:"s3Key"`
}

// State is the outcome of the most recent upload.
type State struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Result  Result `json:"result"`
}

// Error is returned for failed uploads. Message is operator-facing.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Uploader posts files as multipart form data.
type Uploader struct {
	client *apiclient.Client
	state  atomic.Pointer[State]
}

// New returns an idle Uploader.
func New(client *apiclient.Client) *Uploader {
	u := &Uploader{client: client}
	u.state.Store(&State{Status: StatusIdle})
	return u
}

// State returns the outcome of the most recent upload.
func (u *Uploader) State() State { return *u.state.Load() }

// Upload streams r to the service under filename.
func (u *Uploader) Upload(ctx context.Context, filename string, r io.Reader) (Result, error) {
	if filename == "" || r == nil {
		return Result{}, u.fail(&Error{Message: MsgNoFile})
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, u.fail(&Error{Message: MsgTransport, Err: fmt.Errorf("read file: %w", err)})
	}
	head = head[:n]
	contentType := mimetype.Detect(head).String()
	body := io.MultiReader(bytes.NewReader(head), r)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, filename, contentType, body))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.client.URL(Path, nil), pr)
	if err != nil {
		pr.Close()
		return Result{}, u.fail(&Error{Message: MsgTransport, Err: err})
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var res Result
	err = u.client.DoJSON(req, &res)
	pr.Close()
	if err != nil {
		var se *apiclient.StatusError
		if errors.As(err, &se) {
			msg := se.Message
			if msg == "" {
				msg = MsgRejected
			}
			return Result{}, u.fail(&Error{Message: msg, Err: err})
		}
		return Result{}, u.fail(&Error{Message: MsgTransport, Err: err})
	}

	slog.Info("upload: stored", "filename", res.Filename, "key", res.S3Key, "content_type", contentType)
	u.state.Store(&State{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Uploaded %s successfully! (Key: %s)", res.Filename, res.S3Key),
		Result:  res,
	})
	return res, nil
}

func (u *Uploader) fail(e *Error) error {
	slog.Warn("upload: failed", "message", e.Message, "err", e.Err)
	u.state.Store(&State{Status: StatusError, Message: e.Message})
	return e
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeForm(mw *multipart.Writer, filename, contentType string, body io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FormField, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part: %w", err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}
	return mw.Close()
}

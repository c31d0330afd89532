// Package httpapi exposes the conversion service over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
	"github.com/Skryldev/image-convert/hooks"
	"github.com/Skryldev/image-convert/orchestrator"
	"github.com/Skryldev/image-convert/utils"
)

// multipartOverhead is the slack allowed on top of the upload limit for
// multipart boundaries and the other form fields.
const multipartOverhead = 1 << 20

// Service is the part of the orchestrator the handlers call.
type Service interface {
	Submit(ctx context.Context, req core.ConversionRequest) (*orchestrator.Receipt, error)
	Fetch(ctx context.Context, id string) (*core.Result, error)
	Stats() orchestrator.Stats
}

// Handler serves the conversion endpoints.
type Handler struct {
	svc          Service
	metrics      *hooks.InMemoryMetrics
	maxBodyBytes int64
	logger       core.Logger
}

// NewHandler returns a Handler. metrics may be nil.
func NewHandler(svc Service, metrics *hooks.InMemoryMetrics, maxBodyBytes int64, logger core.Logger) *Handler {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Handler{svc: svc, metrics: metrics, maxBodyBytes: maxBodyBytes, logger: logger}
}

// Routes registers every endpoint and wraps them in the middleware chain.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /convert", h.handleConvert)
	mux.HandleFunc("GET /download/{id...}", h.handleDownload)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	mux.HandleFunc("GET /{$}", h.handleRoot)

	handler := http.Handler(mux)
	handler = Recover(h.logger)(handler)
	handler = SecurityHeaders(handler)
	handler = AccessLog(h.logger)(handler)
	handler = RequestID(handler)
	return handler
}

// convertResponse is the body of a successful POST /convert.
type convertResponse struct {
	ID           string     `json:"id"`
	ContentType  string     `json:"content_type"`
	Format       string     `json:"format"`
	SourceFormat string     `json:"source_format"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	Size         int        `json:"size"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	URL          string     `json:"url"`
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	req, err := h.readRequest(w, r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	rec, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	resp := convertResponse{
		ID:           rec.ID,
		ContentType:  rec.ContentType,
		Format:       string(rec.Format),
		SourceFormat: string(rec.SourceFormat),
		Width:        rec.Width,
		Height:       rec.Height,
		Size:         rec.Size,
		URL:          "/download/" + rec.ID,
	}
	if !rec.ExpiresAt.IsZero() {
		t := rec.ExpiresAt.UTC()
		resp.ExpiresAt = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

// readRequest builds a ConversionRequest from either a raw body or a
// multipart form with a "file" field. The target comes from the "format"
// query parameter or form field; the source hint from the body's (or the
// file part's) Content-Type.
func (h *Handler) readRequest(w http.ResponseWriter, r *http.Request) (core.ConversionRequest, error) {
	const op = "http.convert"
	var (
		req      core.ConversionRequest
		data     []byte
		hintType string
		err      error
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes+multipartOverhead)
		data, hintType, err = h.readMultipart(r)
	} else {
		data, err = utils.ReadAll(r.Context(), r.Body, h.maxBodyBytes)
		hintType = mediaType
	}
	if err != nil {
		return req, readError(r.Context(), op, err)
	}

	params := r.URL.Query()
	target := params.Get("format")
	if target == "" && r.MultipartForm != nil {
		target = r.FormValue("format")
	}
	if target == "" {
		return req, apperrors.New(apperrors.CategoryValidation, op, errors.New("missing target format parameter"))
	}

	quality := params.Get("quality")
	if quality == "" && r.MultipartForm != nil {
		quality = r.FormValue("quality")
	}
	if quality != "" {
		q, err := strconv.Atoi(quality)
		if err != nil {
			return req, apperrors.New(apperrors.CategoryValidation, op, apperrors.ErrInvalidQuality)
		}
		req.Options.Quality = q
	}

	req.Data = data
	req.Hint = core.ParseFormat(hintType)
	req.Target = core.ParseFormat(target)
	return req, nil
}

func (h *Handler) readMultipart(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(h.maxBodyBytes); err != nil {
		return nil, "", err
	}
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := utils.ReadAll(r.Context(), file, h.maxBodyBytes)
	if err != nil {
		return nil, "", err
	}
	return data, header.Header.Get("Content-Type"), nil
}

// readError classifies a failure while reading the upload.
func readError(ctx context.Context, op string, err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, apperrors.ErrInputTooLarge):
		return apperrors.New(apperrors.CategoryValidation, op, err)
	case errors.As(err, &tooLarge):
		return apperrors.New(apperrors.CategoryValidation, op,
			fmt.Errorf("%w: limit is %d bytes", apperrors.ErrInputTooLarge, tooLarge.Limit))
	case ctx.Err() != nil:
		return apperrors.Wrap(apperrors.CategoryCanceled, op, ctx.Err())
	}
	return apperrors.New(apperrors.CategoryValidation, op, fmt.Errorf("reading upload: %w", err))
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Fetch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", res.ContentType)
	if res.Checksum != "" {
		hdr.Set("ETag", `"`+res.Checksum+`"`)
	}
	if res.ExpiresAt.IsZero() {
		hdr.Set("Cache-Control", "private, max-age=31536000, immutable")
	} else {
		ttl := int(time.Until(res.ExpiresAt).Seconds())
		if ttl < 0 {
			ttl = 0
		}
		hdr.Set("Cache-Control", "private, max-age="+strconv.Itoa(ttl))
		hdr.Set("Expires", res.ExpiresAt.UTC().Format(http.TimeFormat))
	}
	http.ServeContent(w, r, "", res.CreatedAt, bytes.NewReader(res.Data))
}

func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok\n")
}

func (h *Handler) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]interface{}{
		"orchestrator": h.svc.Stats(),
	}
	if h.metrics != nil {
		payload["pipeline"] = h.metrics.Snapshot()
	}
	writeJSON(w, http.StatusOK, payload)
}

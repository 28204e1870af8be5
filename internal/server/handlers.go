package server

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"invoice-extractor/internal/document"
	"invoice-extractor/internal/invoice"
	"invoice-extractor/internal/pipeline"
	"invoice-extractor/pkg/models"
)

// uploadFields are the accepted multipart field names, in lookup order.
var uploadFields = []string{"invoice", "file"}

// multipartMemory is how much of an upload is buffered before spilling to disk.
const multipartMemory = 8 << 20

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Raw     string `json:"raw,omitempty"`
}

type extractResponse struct {
	models.InvoiceFields

	Warnings    []string `json:"warnings,omitempty"`
	FailedPages []int    `json:"failed_pages,omitempty"`
	Cached      bool     `json:"cached,omitempty"`

	// only with ?text=true
	Text       string `json:"text,omitempty"`
	Provenance string `json:"provenance,omitempty"`
	PageCount  int    `json:"page_count,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Invoice extractor is running\n"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "available",
		"version": s.opts.Version,
	})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	select {
	case s.semaphore <- struct{}{}:
		defer func() { <-s.semaphore }()
	case <-r.Context().Done():
		return
	}

	// the multipart envelope needs some room beyond the file itself
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.errorResponse(w, r, http.StatusRequestEntityTooLarge, errorBody{Error: "File too large", Details: "maximum upload size is " + strconv.FormatInt(s.opts.MaxUploadBytes, 10) + " bytes"})
			return
		}
		s.errorResponse(w, r, http.StatusBadRequest, errorBody{Error: "Could not parse multipart form", Details: err.Error()})
		return
	}
	// spilled upload parts are temp files
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Warn().Err(err).Msg("Failed to remove multipart temp files")
		}
	}()

	file, header, err := formFile(r)
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, errorBody{Error: "No file uploaded", Details: `send the invoice in multipart field "invoice"`})
		return
	}
	defer file.Close()

	doc, err := document.Read(header.Filename, file, header.Header.Get("Content-Type"), s.opts.MaxUploadBytes)
	if err != nil {
		s.documentError(w, r, err)
		return
	}

	log.Info().
		Str("filename", doc.Name()).
		Str("kind", string(doc.Kind())).
		Int("size_bytes", doc.Size()).
		Msg("Processing upload")

	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	extraction, err := s.processor.Process(ctx, doc)
	if err != nil {
		s.extractionError(w, r, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "csv":
		s.writeCSV(w, r, extraction)
		return
	case "", "json":
	default:
		s.errorResponse(w, r, http.StatusBadRequest, errorBody{Error: "Unsupported format", Details: `use "json" or "csv"`})
		return
	}

	resp := extractResponse{
		InvoiceFields: extraction.Fields,
		Warnings:      extraction.Warnings,
		FailedPages:   extraction.FailedPages,
		Cached:        extraction.Cached,
	}
	if withText, _ := strconv.ParseBool(r.URL.Query().Get("text")); withText {
		resp.Text = extraction.Text
		resp.Provenance = extraction.Provenance
		resp.PageCount = extraction.PageCount
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	var lastErr error
	for _, field := range uploadFields {
		file, header, err := r.FormFile(field)
		if err == nil {
			return file, header, nil
		}
		lastErr = err
	}
	return nil, nil, lastErr
}

func (s *Server) documentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, document.ErrTooLarge):
		s.errorResponse(w, r, http.StatusRequestEntityTooLarge, errorBody{Error: "File too large", Details: err.Error()})
	case errors.Is(err, document.ErrUnsupportedType):
		s.errorResponse(w, r, http.StatusUnsupportedMediaType, errorBody{Error: "Unsupported file type", Details: "upload a PDF, JPG or PNG invoice"})
	case errors.Is(err, document.ErrEmptyDocument):
		s.errorResponse(w, r, http.StatusBadRequest, errorBody{Error: "Uploaded file is empty"})
	default:
		s.errorResponse(w, r, http.StatusBadRequest, errorBody{Error: "Could not read upload", Details: err.Error()})
	}
}

// extractionError maps processing failures to HTTP responses. An unreadable
// document is the user's to fix; everything else is ours.
func (s *Server) extractionError(w http.ResponseWriter, r *http.Request, err error) {
	log := zerolog.Ctx(r.Context())

	var respErr *invoice.AIResponseError
	switch {
	case errors.Is(err, pipeline.ErrNoExtractableText):
		log.Warn().Err(err).Msg("No extractable text")
		s.errorResponse(w, r, http.StatusUnprocessableEntity, errorBody{
			Error:   "No extractable text",
			Details: "Could not read any text from this file. Please upload a clearer scan.",
		})
	case errors.Is(err, pipeline.ErrRasterizationFailed):
		log.Error().Err(err).Msg("Rasterization failed")
		s.errorResponse(w, r, http.StatusInternalServerError, errorBody{
			Error:   "Internal processing error",
			Details: "The PDF could not be rendered for OCR.",
		})
	case errors.As(err, &respErr):
		log.Error().Err(err).Msg("AI response not in JSON format")
		s.errorResponse(w, r, http.StatusInternalServerError, errorBody{Error: invoice.ErrInvalidAIResponse.Error(), Raw: respErr.Raw})
	case errors.Is(err, context.DeadlineExceeded):
		log.Error().Err(err).Msg("Extraction timed out")
		s.errorResponse(w, r, http.StatusGatewayTimeout, errorBody{Error: "Extraction timed out", Details: err.Error()})
	case errors.Is(err, context.Canceled):
		log.Info().Msg("Client went away during extraction")
	default:
		log.Error().Err(err).Msg("Extraction failed")
		s.errorResponse(w, r, http.StatusInternalServerError, errorBody{Error: "Server failed", Details: err.Error()})
	}
}

func (s *Server) writeCSV(w http.ResponseWriter, r *http.Request, extraction *models.Extraction) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="invoice_data.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(models.CSVHeader)
	_ = cw.Write(extraction.CSVRecord())
	cw.Flush()
	if err := cw.Error(); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to write CSV response")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	js, err := json.Marshal(data)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, `{"error":"Server failed"}`, http.StatusInternalServerError)
		return
	}
	js = append(js, '\n')

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(js)
}

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, status int, body errorBody) {
	s.writeJSON(w, r, status, body)
}

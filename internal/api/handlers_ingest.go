package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/dswagner/psychoportal/internal/domain"
)

// maxUploadBytes bounds a single /ingest or /voice/stt body.
const maxUploadBytes = 25 << 20 // 25 MiB

// handleIngest accepts a multipart upload
// and routes it to the Interaction Loop's background extraction queue by
// content type: plain text and .txt/.md files go straight to IngestText;
// images are captioned first via IngestImage; .pdf files are extracted
// page-by-page with github.com/ledongthuc/pdf, grounded on
// teradata-labs-loom's document_parse.go (pdf.Open requires a path, so the
// upload is spooled to a temp file first).
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	dom := r.FormValue("domain")
	if dom == "" {
		dom = domain.General
	}
	sourceID := uuid.NewString()

	if text := r.FormValue("text"); strings.TrimSpace(text) != "" {
		s.loop.IngestText(r.Context(), sourceID, dom, text)
		respondJSON(w, http.StatusAccepted, map[string]string{"source_id": sourceID, "status": "queued"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, errEmptyIngest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	name := strings.ToLower(header.Filename)

	switch {
	case strings.HasSuffix(name, ".pdf") || contentType == "application/pdf":
		text, err := extractPDFText(file)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, err)
			return
		}
		s.loop.IngestText(r.Context(), sourceID, dom, text)

	case strings.HasPrefix(contentType, "image/"):
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.loop.IngestImage(r.Context(), sourceID, data, contentType); err != nil {
			respondError(w, http.StatusBadGateway, err)
			return
		}

	default:
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		s.loop.IngestText(r.Context(), sourceID, dom, string(data))
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"source_id": sourceID, "status": "queued"})
}

func extractPDFText(src io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "psychoportal-ingest-*.pdf")
	if err != nil {
		return "", fmt.Errorf("ingest: pdf temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, io.LimitReader(src, maxUploadBytes)); err != nil {
		return "", fmt.Errorf("ingest: pdf spool: %w", err)
	}

	f, r, err := pdf.Open(tmp.Name())
	if err != nil {
		return "", fmt.Errorf("ingest: pdf open: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for n := 1; n <= r.NumPage(); n++ {
		page := r.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

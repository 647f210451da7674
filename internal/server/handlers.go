package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/straja-ai/soundlens/internal/classifier"
	"github.com/straja-ai/soundlens/internal/content"
	"github.com/straja-ai/soundlens/internal/pipeline"
	"github.com/straja-ai/soundlens/internal/redact"
	"github.com/straja-ai/soundlens/internal/web"
)

// errNoFile marks a form without the audio field.
var errNoFile = errors.New("no audio file uploaded")

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.pages.Index(w, http.StatusOK, web.IndexPage{Formats: s.formats})
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	s.pages.About(w, s.about)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(web.RobotsTagHeader, web.RobotsTagValue)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleClassifyForm(w http.ResponseWriter, r *http.Request) {
	out, err := s.classify(w, r)
	if err != nil {
		status, _, msg := classifyError(err, s.formats)
		s.pages.Index(w, status, web.IndexPage{Formats: s.formats, Error: msg})
		return
	}
	s.pages.Result(w, web.NewResultPage(out, s.formats))
}

type classifyResponse struct {
	RequestID      string                 `json:"request_id"`
	Label          string                 `json:"label"`
	Probabilities  []classifier.LabelProb `json:"probabilities"`
	Content        content.Bundle         `json:"content"`
	Fallback       bool                   `json:"fallback"`
	SpectrogramPNG string                 `json:"spectrogram_png"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (s *Server) handleClassifyAPI(w http.ResponseWriter, r *http.Request) {
	out, err := s.classify(w, r)
	if err != nil {
		status, typ, msg := classifyError(err, s.formats)
		writeJSONError(w, status, msg, typ)
		return
	}
	writeJSON(w, http.StatusOK, classifyResponse{
		RequestID:      out.RequestID,
		Label:          out.Result.Label,
		Probabilities:  out.Result.Probabilities,
		Content:        out.Content,
		Fallback:       out.Fallback,
		SpectrogramPNG: base64.StdEncoding.EncodeToString(out.PNG),
	})
}

// classify reads the multipart upload and runs the pipeline on it.
func (s *Server) classify(w http.ResponseWriter, r *http.Request) (*pipeline.Outcome, error) {
	if max := s.cfg.Server.MaxUploadBytes; max > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, max)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, err
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, errNoFile
		}
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errNoFile
	}

	return s.pipeline.Run(r.Context(), pipeline.Upload{Filename: header.Filename, Data: data})
}

// classifyError maps a request failure to an HTTP status, an error type and a
// message safe to show to the user.
func classifyError(err error, formats []string) (int, string, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large"):
		return http.StatusRequestEntityTooLarge, "upload_too_large", "The uploaded file is too large."
	case errors.Is(err, errNoFile):
		return http.StatusBadRequest, "missing_file", "Choose an audio file to upload."
	case errors.Is(err, pipeline.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported_format",
			fmt.Sprintf("Unsupported audio format. Upload one of: %s.", strings.ToUpper(strings.Join(formats, ", ")))
	case errors.Is(err, pipeline.ErrDecode):
		return http.StatusBadRequest, "decode_error", "The file could not be decoded as audio: " + redact.String(err.Error())
	case errors.Is(err, pipeline.ErrInference):
		return http.StatusInternalServerError, "inference_error", "The classifier failed on this clip. Please try again."
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled", "The request was canceled before it finished."
	case errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary):
		return http.StatusBadRequest, "invalid_request", "Send the audio as multipart/form-data in the \"audio\" field."
	default:
		redact.Logf("classify: unexpected error: %v", err)
		return http.StatusInternalServerError, "internal_error", "Something went wrong while processing the clip."
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(web.RobotsTagHeader, web.RobotsTagValue)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		redact.Logf("failed to write json response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message, typ string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: message, Type: typ}})
}

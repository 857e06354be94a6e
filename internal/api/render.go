package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/roach88/nexus/internal/doc"
	"github.com/roach88/nexus/internal/resource"
)

// Metadata keys added to payloads in responses.
const (
	keyID         = "@id"
	keyRev        = "nxv:rev"
	keyDeprecated = "nxv:deprecated"
	keyPublished  = "nxv:published"
	keyAttachment = "nxv:attachment"
)

// messageInternal hides infrastructure detail from clients; the log keeps it.
const messageInternal = "The system experienced an unexpected error, please try again later."

func (s *Server) id(ref resource.Ref) string {
	return s.baseURL + ref.URLPath()
}

// represent renders a snapshot as its payload plus metadata.
func (s *Server) represent(snap resource.Snapshot) doc.Object {
	out := snap.Payload.Clone()
	if out == nil {
		out = doc.Object{}
	}
	out[keyID] = doc.String(s.id(snap.Ref))
	out[keyRev] = doc.Int(snap.Rev)
	out[keyDeprecated] = doc.Bool(snap.Deprecated)
	if snap.Ref.Kind == resource.KindSchema {
		out[keyPublished] = doc.Bool(snap.Published)
	}
	if a := snap.Attachment; a != nil {
		out[keyAttachment] = doc.Object{
			"originalFileName": doc.String(a.Filename),
			"mediaType":        doc.String(a.MediaType),
			"contentSize":      doc.Int(a.Size),
			"digest":           doc.String(a.Digest),
		}
	}
	return out
}

// writeRef is the body of successful writes.
func (s *Server) writeRef(snap resource.Snapshot) doc.Object {
	return doc.Object{
		keyID:  doc.String(s.id(snap.Ref)),
		keyRev: doc.Int(snap.Rev),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	var (
		data []byte
		err  error
	)
	if val, ok := v.(doc.Value); ok {
		data, err = doc.MarshalCanonical(val)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		s.logger.Error("encode response", "error", err)
		http.Error(w, messageInternal, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusOf maps an error category to its HTTP status.
func statusOf(err error) int {
	switch resource.CategoryOf(err) {
	case resource.CategoryNotFound:
		return http.StatusNotFound
	case resource.CategoryAlreadyExists, resource.CategoryRevisionConflict:
		return http.StatusConflict
	case resource.CategoryDeprecated, resource.CategoryAlreadyDeprecated, resource.CategoryInvalidPayload:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// describe returns the status, code and client-facing message of err.
func (s *Server) describe(r *http.Request, err error) (int, string, string) {
	status := statusOf(err)
	code := resource.Code(err)
	message := resource.Message(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
		if code == resource.CodeInternal {
			message = messageInternal
		}
	}
	return status, code, message
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := s.describe(r, err)
	s.writeJSON(w, status, errorBody{Code: code, Message: message})
}

// writeTextError answers binary endpoints, whose clients expect no JSON.
func (s *Server) writeTextError(w http.ResponseWriter, r *http.Request, err error) {
	status, _, message := s.describe(r, err)
	h := w.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, message); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}

package api

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/roach88/nexus/internal/attach"
	"github.com/roach88/nexus/internal/resource"
)

const defaultFilename = "attachment"

// putAttachment accepts a multipart form with a "file" part, or the raw
// body with ?filename= and the request Content-Type.
func (s *Server) putAttachment(w http.ResponseWriter, r *http.Request) error {
	ref, err := refFromPath(r, resource.KindInstance.Depth())
	if err != nil {
		return err
	}
	rev, err := revParam(r, true)
	if err != nil {
		return err
	}

	up, closeBody, err := uploadFrom(r)
	if err != nil {
		return err
	}
	defer closeBody()

	snap, err := s.attachments.Put(r.Context(), ref, rev, up)
	if err != nil {
		return err
	}
	s.writeJSON(w, http.StatusCreated, s.writeRef(snap))
	return nil
}

func uploadFrom(r *http.Request) (attach.Upload, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		filename := r.URL.Query().Get("filename")
		if filename == "" {
			filename = defaultFilename
		}
		return attach.Upload{Filename: filename, MediaType: mediaType, Body: r.Body}, func() {}, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return attach.Upload{}, nil, resource.ErrIllegalPayload("malformed multipart body")
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return attach.Upload{}, nil, resource.ErrIllegalPayload("multipart body has no 'file' part")
		}
		if err != nil {
			return attach.Upload{}, nil, resource.ErrIllegalPayload("malformed multipart body")
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		filename := part.FileName()
		if filename == "" {
			filename = defaultFilename
		}
		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		return attach.Upload{Filename: filename, MediaType: partType, Body: part}, func() { part.Close() }, nil
	}
}

// getAttachment streams the attachment bytes. Errors are plain text.
func (s *Server) getAttachment(w http.ResponseWriter, r *http.Request) error {
	ref, err := refFromPath(r, resource.KindInstance.Depth())
	if err != nil {
		s.writeTextError(w, r, err)
		return nil
	}
	rev, err := revParam(r, false)
	if err != nil {
		s.writeTextError(w, r, err)
		return nil
	}
	snap, body, err := s.attachments.Get(r.Context(), ref, rev)
	if err != nil {
		s.writeTextError(w, r, err)
		return nil
	}
	defer body.Close()

	a := snap.Attachment
	h := w.Header()
	h.Set("Content-Type", a.MediaType)
	h.Set("Content-Length", strconv.FormatInt(a.Size, 10))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
	h.Set("ETag", strconv.Quote(a.Digest))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		// Headers are gone; the short body is all the client will see.
		s.logger.Error("stream attachment", "ref", ref.String(), "rev", snap.Rev, "error", err)
	}
	return nil
}

func (s *Server) deleteAttachment(w http.ResponseWriter, r *http.Request) error {
	ref, err := refFromPath(r, resource.KindInstance.Depth())
	if err != nil {
		return err
	}
	rev, err := revParam(r, true)
	if err != nil {
		return err
	}
	snap, err := s.attachments.Remove(r.Context(), ref, rev)
	if err != nil {
		return err
	}
	s.writeJSON(w, http.StatusOK, s.writeRef(snap))
	return nil
}

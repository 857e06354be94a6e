package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/roach88/nexus/internal/doc"
	"github.com/roach88/nexus/internal/resource"
)

// revParam reads ?rev=. Absent yields 0 unless required; a present value
// must be a positive integer.
func revParam(r *http.Request, required bool) (int64, error) {
	v := r.URL.Query().Get("rev")
	if v == "" {
		if required {
			return 0, resource.ErrMissingRevision()
		}
		return 0, nil
	}
	rev, err := strconv.ParseInt(v, 10, 64)
	if err != nil || rev < 1 {
		return 0, resource.ErrIllegalPayload("query parameter 'rev' must be a positive integer")
	}
	return rev, nil
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, resource.ErrIllegalPayload("query parameter '" + name + "' must be a non-negative integer")
	}
	return n, nil
}

func boolParam(r *http.Request, name string) (*bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, resource.ErrIllegalPayload("query parameter '" + name + "' must be true or false")
	}
	return &b, nil
}

// readPayload decodes the request body as a JSON object.
func (s *Server) readPayload(w http.ResponseWriter, r *http.Request) (doc.Object, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxPayload))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, resource.ErrIllegalPayload("request body exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes")
	}
	if err != nil {
		return nil, resource.ErrIllegalPayload("could not read request body")
	}
	obj, err := doc.ParseObject(data)
	if err != nil {
		return nil, resource.ErrIllegalPayload(err.Error())
	}
	return obj, nil
}

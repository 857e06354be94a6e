package api

import (
	"net/http"

	"github.com/roach88/nexus/internal/doc"
	"github.com/roach88/nexus/internal/resource"
)

// putResource creates ref, or updates it when ?rev= is present.
func (s *Server) putResource(kind resource.Kind) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		ref, err := refFromPath(r, kind.Depth())
		if err != nil {
			return err
		}
		payload, err := s.readPayload(w, r)
		if err != nil {
			return err
		}

		if !r.URL.Query().Has("rev") {
			snap, err := s.store.Create(r.Context(), ref, payload)
			if err != nil {
				return err
			}
			s.writeJSON(w, http.StatusCreated, s.writeRef(snap))
			return nil
		}

		rev, err := revParam(r, true)
		if err != nil {
			return err
		}
		snap, err := s.store.Update(r.Context(), ref, payload, rev)
		if err != nil {
			return err
		}
		s.writeJSON(w, http.StatusOK, s.writeRef(snap))
		return nil
	}
}

func (s *Server) getResource(kind resource.Kind) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		ref, err := refFromPath(r, kind.Depth())
		if err != nil {
			return err
		}
		rev, err := revParam(r, false)
		if err != nil {
			return err
		}
		snap, err := s.store.Read(r.Context(), ref, rev)
		if err != nil {
			return err
		}
		s.writeJSON(w, http.StatusOK, s.represent(snap))
		return nil
	}
}

func (s *Server) deprecateResource(kind resource.Kind) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		ref, err := refFromPath(r, kind.Depth())
		if err != nil {
			return err
		}
		rev, err := revParam(r, true)
		if err != nil {
			return err
		}
		snap, err := s.store.Deprecate(r.Context(), ref, rev)
		if err != nil {
			return err
		}
		s.writeJSON(w, http.StatusOK, s.writeRef(snap))
		return nil
	}
}

// patchSchemaConfig publishes a schema. The body must be {"published": true}.
func (s *Server) patchSchemaConfig(w http.ResponseWriter, r *http.Request) error {
	ref, err := refFromPath(r, resource.KindSchema.Depth())
	if err != nil {
		return err
	}
	rev, err := revParam(r, true)
	if err != nil {
		return err
	}
	body, err := s.readPayload(w, r)
	if err != nil {
		return err
	}
	if published, ok := body["published"].(doc.Bool); !ok || !bool(published) {
		return resource.ErrIllegalPayload(`schema configuration only supports {"published": true}`)
	}

	snap, err := s.store.Publish(r.Context(), ref, rev)
	if err != nil {
		return err
	}
	s.writeJSON(w, http.StatusOK, s.writeRef(snap))
	return nil
}

// postInstance creates an instance with a generated id.
func (s *Server) postInstance(w http.ResponseWriter, r *http.Request) error {
	schema, err := refFromPath(r, resource.KindSchema.Depth())
	if err != nil {
		return err
	}
	payload, err := s.readPayload(w, r)
	if err != nil {
		return err
	}
	snap, err := s.store.CreateInstance(r.Context(), schema, payload)
	if err != nil {
		return err
	}
	s.writeJSON(w, http.StatusCreated, s.writeRef(snap))
	return nil
}

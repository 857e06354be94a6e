package api

import (
	"net/http"
	"strings"

	"github.com/roach88/nexus/internal/doc"
	"github.com/roach88/nexus/internal/index"
	"github.com/roach88/nexus/internal/query"
	"github.com/roach88/nexus/internal/resource"
)

type searchHit struct {
	ResultID string     `json:"resultId"`
	Source   doc.Object `json:"source"`
}

type searchResponse struct {
	Total   int64       `json:"total"`
	Results []searchHit `json:"results"`
}

// searchKind lists resources of kind below the ref named by the first
// depth path segments. Results are eventually consistent with writes.
func (s *Server) searchKind(kind resource.Kind, depth int) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		q := index.Query{Kind: kind}
		if depth > 0 {
			scope, err := refFromPath(r, depth)
			if err != nil {
				return err
			}
			q.Prefix = scope.Path
		}

		params := r.URL.Query()
		q.Term = strings.TrimSpace(params.Get("q"))
		if f := params.Get("filter"); f != "" {
			pred, err := query.Parse([]byte(f))
			if err != nil {
				return resource.ErrIllegalPayload(err.Error())
			}
			q.Filter = pred
		}

		var err error
		if q.Size, err = intParam(r, "size"); err != nil {
			return err
		}
		if q.From, err = intParam(r, "from"); err != nil {
			return err
		}
		if q.Deprecated, err = boolParam(r, "deprecated"); err != nil {
			return err
		}

		res, err := s.search.Search(r.Context(), q)
		if err != nil {
			return err
		}

		out := searchResponse{Total: res.Total, Results: make([]searchHit, 0, len(res.Hits))}
		for _, hit := range res.Hits {
			out.Results = append(out.Results, searchHit{
				ResultID: s.id(hit.Ref),
				Source:   s.represent(hit),
			})
		}
		s.writeJSON(w, http.StatusOK, out)
		return nil
	}
}

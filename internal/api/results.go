package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/seantiz/deferrpc/internal/model"
	"github.com/seantiz/deferrpc/internal/store"
)

// listResultsResponse wraps the paginated list response.
type listResultsResponse struct {
	Results []*model.TaskResult `json:"results"`
	Total   int                 `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	filter, err := resultFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.store.FindBy(r.Context(), filter, limit, offset)
	if errors.Is(err, store.ErrInvalidFilter) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("list results", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}

	total, err := s.store.Count(r.Context(), filter)
	if err != nil {
		s.logger.Error("count results", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}

	if results == nil {
		results = []*model.TaskResult{}
	}

	s.writeJSON(w, http.StatusOK, listResultsResponse{
		Results: results,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// resultFilter builds a store filter from the task_id and id query
// parameters.
func resultFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	filter := store.Filter{}

	if v := q.Get("task_id"); v != "" {
		filter["task_id"] = v
	}
	if v := q.Get("id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.New("id must be an integer")
		}
		filter["id"] = id
	}
	return filter, nil
}

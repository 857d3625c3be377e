// Package indextest provides an in-memory fake of the document store engine
// for tests. It implements just enough of the wire protocol the Client
// speaks: document put/get/delete, delete-by-query with term, ids, and
// updated-range filters, search with an optional tenant term, and refresh.
package indextest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Server is the fake engine. Docs maps document id to the stored JSON object.
type Server struct {
	mu   sync.Mutex
	docs map[string]map[string]any
	srv  *httptest.Server

	// FailPuts makes every document write return a 500, for storage-failure
	// paths.
	FailPuts bool
}

// New starts the fake engine.
func New() *Server {
	s := &Server{docs: make(map[string]map[string]any)}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the engine's base URL.
func (s *Server) URL() string { return s.srv.URL }

// Close shuts the fake engine down.
func (s *Server) Close() { s.srv.Close() }

// Put seeds a document directly, bypassing HTTP.
func (s *Server) Put(id string, doc map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = doc
}

// Doc returns a stored document and whether it exists.
func (s *Server) Doc(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	return d, ok
}

// Count returns the number of stored documents.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// IDs returns all stored document ids.
func (s *Server) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	return ids
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 {
		http.NotFound(w, r)
		return
	}
	switch {
	case parts[1] == "_doc" && len(parts) == 3:
		s.handleDoc(w, r, parts[2])
	case parts[1] == "_delete_by_query":
		s.handleDeleteByQuery(w, r)
	case parts[1] == "_search":
		s.handleSearch(w, r)
	case parts[1] == "_refresh":
		writeJSON(w, map[string]any{"_shards": map[string]any{"failed": 0}})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleDoc(w http.ResponseWriter, r *http.Request, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		if s.FailPuts {
			w.WriteHeader(http.StatusInternalServerError)
			writeJSON(w, map[string]any{"error": "write rejected"})
			return
		}
		var doc map[string]any
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		result := "created"
		if _, ok := s.docs[id]; ok {
			result = "updated"
		}
		s.docs[id] = doc
		writeJSON(w, map[string]any{"_id": id, "result": result})
	case http.MethodGet:
		doc, ok := s.docs[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"_id": id, "found": false})
			return
		}
		writeJSON(w, map[string]any{"_id": id, "found": true, "_source": doc})
	case http.MethodDelete:
		if _, ok := s.docs[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"result": "not_found"})
			return
		}
		delete(s.docs, id)
		writeJSON(w, map[string]any{"result": "deleted"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type queryEnvelope struct {
	Query map[string]any `json:"query"`
}

func (s *Server) handleDeleteByQuery(w http.ResponseWriter, r *http.Request) {
	var env queryEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int
	for id, doc := range s.docs {
		if matches(env.Query, id, doc) {
			delete(s.docs, id)
			deleted++
		}
	}
	writeJSON(w, map[string]any{
		"took":     1,
		"total":    deleted,
		"deleted":  deleted,
		"failures": []any{},
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var env queryEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var hits []map[string]any
	for id, doc := range s.docs {
		if env.Query != nil && !matches(env.Query, id, doc) {
			continue
		}
		hits = append(hits, map[string]any{
			"_id":       id,
			"_score":    1.0,
			"_source":   doc,
			"highlight": map[string][]string{},
		})
	}
	if hits == nil {
		hits = []map[string]any{}
	}
	writeJSON(w, map[string]any{
		"hits": map[string]any{
			"total": map[string]any{"value": len(hits)},
			"hits":  hits,
		},
	})
}

// matches covers the query shapes the service issues: term, ids, range on
// updated, bool with must/filter lists, and match/match_phrase (substring).
func matches(query map[string]any, id string, doc map[string]any) bool {
	for kind, raw := range query {
		clause, _ := raw.(map[string]any)
		switch kind {
		case "term":
			for field, want := range clause {
				if fmt.Sprint(doc[field]) != fmt.Sprint(want) {
					return false
				}
			}
		case "ids":
			values, _ := clause["values"].([]any)
			found := false
			for _, v := range values {
				if fmt.Sprint(v) == id {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case "range":
			for field, cond := range clause {
				if !matchRange(doc[field], cond) {
					return false
				}
			}
		case "bool":
			for _, key := range []string{"must", "filter"} {
				list, _ := clause[key].([]any)
				for _, sub := range list {
					subQuery, _ := sub.(map[string]any)
					if !matches(subQuery, id, doc) {
						return false
					}
				}
			}
		case "match", "match_phrase":
			for field, want := range clause {
				text := strings.ToLower(fmt.Sprint(doc[field]))
				if !strings.Contains(text, strings.ToLower(fmt.Sprint(want))) {
					return false
				}
			}
		case "match_all":
		default:
			return false
		}
	}
	return true
}

func matchRange(value any, cond any) bool {
	bounds, _ := cond.(map[string]any)
	ts, err := time.Parse(time.RFC3339, fmt.Sprint(value))
	if err != nil {
		return false
	}
	if lt, ok := bounds["lt"]; ok {
		cutoff, err := time.Parse(time.RFC3339, fmt.Sprint(lt))
		if err != nil || !ts.Before(cutoff) {
			return false
		}
	}
	if gte, ok := bounds["gte"]; ok {
		cutoff, err := time.Parse(time.RFC3339, fmt.Sprint(gte))
		if err != nil || ts.Before(cutoff) {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

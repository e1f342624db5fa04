package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rockmrack/crownsafe/internal/connector"
	"github.com/rockmrack/crownsafe/internal/match"
	"github.com/rockmrack/crownsafe/internal/plan"
	"github.com/rockmrack/crownsafe/internal/recall"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("content-type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{"items": s.plans.Templates()})
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		TemplateID string         `json:"template_id"`
		Inputs     map[string]any `json:"inputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.TemplateID) == "" {
		http.Error(w, "template_id required", http.StatusBadRequest)
		return
	}

	result, err := s.plans.Submit(r.Context(), body.TemplateID, body.Inputs)
	if err != nil {
		var bindErr *plan.BindError
		if errors.As(err, &bindErr) {
			http.Error(w, bindErr.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	report, err := s.fanout.RunCycle(r.Context())
	if err != nil {
		if errors.Is(err, connector.ErrAllSourcesFailed) {
			w.Header().Set("content-type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			writeJSONBody(w, report)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := match.Query{
		Identifiers: map[string]string{},
		Name:        r.URL.Query().Get("name"),
		Brand:       r.URL.Query().Get("brand"),
	}
	for _, kind := range recall.IdentifierKinds {
		if v := r.URL.Query().Get(kind); v != "" {
			q.Identifiers[kind] = v
		}
	}

	result, err := s.match.Match(r.Context(), q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("content-type", "application/json")
	writeJSONBody(w, v)
}

func writeJSONBody(w http.ResponseWriter, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Package introspect serves the contents of a metadata repository over HTTP
// as read-only JSON.
//
// Routes:
//
//	GET /healthz
//	GET /metadata
//	GET /metadata/{class}
//	GET /aliases
//	GET /aliases/{alias}
//	GET /queries
//	GET /sequences
//	GET /nonpersistent
package introspect

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/ormeta/internal/meta"
	strutil "github.com/conduit-lang/ormeta/internal/util/strings"
	"github.com/conduit-lang/ormeta/internal/web/middleware"
)

// Handler exposes one repository. Lookups run in the given loader and may
// load and resolve metadata as a side effect, exactly like any other caller
// of the repository.
type Handler struct {
	repo   *meta.Repository
	loader meta.Loader
	logger *zap.Logger
	mux    chi.Router
}

// NewHandler builds the routes for repo.
func NewHandler(repo *meta.Repository, loader meta.Loader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{repo: repo, loader: loader, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recovery(logger))

	r.Get("/healthz", h.health)
	r.Route("/metadata", func(r chi.Router) {
		r.Get("/", h.listMetaData)
		r.Get("/{class}", h.showMetaData)
	})
	r.Route("/aliases", func(r chi.Router) {
		r.Get("/", h.listAliases)
		r.Get("/{alias}", h.showAlias)
	})
	r.Get("/queries", h.listQueries)
	r.Get("/sequences", h.listSequences)
	r.Get("/nonpersistent", h.listNonPersistent)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		renderError(w, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	})

	h.mux = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type healthResponse struct {
	Status  string `json:"status"`
	Locking bool   `json:"locking"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, healthResponse{Status: "ok", Locking: h.repo.Locking()})
}

func (h *Handler) listMetaData(w http.ResponseWriter, r *http.Request) {
	metas, err := h.repo.MetaDatas()
	if err != nil {
		h.renderLookupError(w, err, "")
		return
	}
	out := make([]classSummary, 0, len(metas))
	for _, m := range metas {
		out = append(out, summarize(m))
	}
	renderJSON(w, http.StatusOK, out)
}

func (h *Handler) showMetaData(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "class")

	cls, err := h.loader.LoadClass(name, false)
	if err != nil {
		if errors.Is(err, meta.ErrClassNotFound) {
			hint := strutil.ClosestLevenshtein(name, h.repo.PersistentTypeNames(false, h.loader), 0.5)
			renderError(w, http.StatusNotFound, err, hint)
			return
		}
		h.renderLookupError(w, err, "")
		return
	}

	m, err := h.repo.GetMetaData(cls, h.loader, true)
	if err != nil {
		h.renderLookupError(w, err, "")
		return
	}
	renderJSON(w, http.StatusOK, describe(m))
}

type aliasEntry struct {
	Alias string `json:"alias"`
	Class string `json:"class,omitempty"`
}

func (h *Handler) listAliases(w http.ResponseWriter, r *http.Request) {
	names := h.repo.AliasNames()
	out := make([]aliasEntry, 0, len(names))
	for _, alias := range names {
		entry := aliasEntry{Alias: alias}
		m, err := h.repo.GetMetaDataByAlias(alias, h.loader, false)
		if err != nil {
			h.logger.Debug("alias did not resolve", zap.String("alias", alias), zap.Error(err))
		}
		if m != nil {
			entry.Class = m.DescribedType().Name
		}
		out = append(out, entry)
	}
	renderJSON(w, http.StatusOK, out)
}

func (h *Handler) showAlias(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	m, err := h.repo.GetMetaDataByAlias(alias, h.loader, true)
	if err != nil {
		h.renderLookupError(w, err, h.repo.ClosestAliasName(alias))
		return
	}
	renderJSON(w, http.StatusOK, describe(m))
}

type queryEntry struct {
	Name         string            `json:"name"`
	DefiningType string            `json:"defining_type,omitempty"`
	ResultType   string            `json:"result_type,omitempty"`
	Language     string            `json:"language,omitempty"`
	Query        string            `json:"query,omitempty"`
	Hints        map[string]string `json:"hints,omitempty"`
}

func (h *Handler) listQueries(w http.ResponseWriter, r *http.Request) {
	queries := h.repo.QueryMetaDatas()
	out := make([]queryEntry, 0, len(queries))
	for _, q := range queries {
		out = append(out, queryEntry{
			Name:         q.Name(),
			DefiningType: className(q.DefiningType()),
			ResultType:   className(q.ResultType()),
			Language:     q.Language,
			Query:        q.Query,
			Hints:        q.Hints,
		})
	}
	renderJSON(w, http.StatusOK, out)
}

type sequenceEntry struct {
	Name      string `json:"name"`
	Sequence  string `json:"sequence,omitempty"`
	Strategy  string `json:"strategy"`
	Initial   int64  `json:"initial"`
	Increment int64  `json:"increment"`
	Allocate  int    `json:"allocate"`
}

func (h *Handler) listSequences(w http.ResponseWriter, r *http.Request) {
	seqs := h.repo.SequenceMetaDatas()
	out := make([]sequenceEntry, 0, len(seqs))
	for _, s := range seqs {
		out = append(out, sequenceEntry{
			Name:      s.Name(),
			Sequence:  s.Sequence,
			Strategy:  s.Strategy,
			Initial:   s.Initial,
			Increment: s.Increment,
			Allocate:  s.Allocate,
		})
	}
	renderJSON(w, http.StatusOK, out)
}

type nonPersistentResponse struct {
	PersistenceAware    []string `json:"persistence_aware"`
	NonMappedInterfaces []string `json:"non_mapped_interfaces"`
}

func (h *Handler) listNonPersistent(w http.ResponseWriter, r *http.Request) {
	out := nonPersistentResponse{PersistenceAware: []string{}, NonMappedInterfaces: []string{}}
	for _, n := range h.repo.PersistenceAwares() {
		out.PersistenceAware = append(out.PersistenceAware, n.String())
	}
	for _, n := range h.repo.NonMappedInterfaces() {
		out.NonMappedInterfaces = append(out.NonMappedInterfaces, n.String())
	}
	renderJSON(w, http.StatusOK, out)
}

func (h *Handler) renderLookupError(w http.ResponseWriter, err error, hint string) {
	if meta.IsNotFound(err) {
		renderError(w, http.StatusNotFound, err, hint)
		return
	}
	h.logger.Warn("metadata lookup failed", zap.Error(err))
	renderError(w, http.StatusUnprocessableEntity, err, hint)
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error      string   `json:"error"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
	Causes     []string `json:"causes,omitempty"`
}

func renderError(w http.ResponseWriter, status int, err error, hint ...string) {
	resp := ErrorResponse{
		Error:   errorCode(status),
		Message: err.Error(),
	}
	if len(hint) > 0 {
		resp.Suggestion = hint[0]
	}
	var me *meta.MetaDataError
	if errors.As(err, &me) && len(me.Nested) > 0 {
		resp.Message = me.Message
		for _, nested := range me.Nested {
			resp.Causes = append(resp.Causes, nested.Error())
		}
	}
	renderJSON(w, status, resp)
}

func errorCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "resolution_failed"
	default:
		return "error"
	}
}

func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

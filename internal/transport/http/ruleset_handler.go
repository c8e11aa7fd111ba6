package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "ncbproc/internal/errors"
	"ncbproc/internal/ruleset"
	"ncbproc/internal/services"
)

// RulesetHandler exposes the built-in rulesets.
type RulesetHandler struct {
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewRulesetHandler creates a new ruleset handler
func NewRulesetHandler(logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *RulesetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RulesetHandler{
		logger:       logger.With(slog.String("handler", "ruleset")),
		errorHandler: errorHandler,
	}
}

// Routes returns the ruleset routes
func (h *RulesetHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/", h.List)
	r.Get("/{name}", h.Get)
	return r
}

// RulesetList is the response of GET /api/v1/rulesets.
type RulesetList struct {
	Default  string                   `json:"default"`
	Rulesets []services.RulesetHealth `json:"rulesets"`
}

// List handles GET /api/v1/rulesets
func (h *RulesetHandler) List(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, RulesetList{
		Default:  ruleset.DefaultName,
		Rulesets: services.Rulesets(),
	})
}

// Get handles GET /api/v1/rulesets/{name}
func (h *RulesetHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rs, err := ruleset.Builtin(name)
	if errors.Is(err, ruleset.ErrUnknownRuleset) {
		h.errorHandler.HandleError(w, r, apierrors.NotFoundError("ruleset "+name))
		return
	}
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, rs)
}

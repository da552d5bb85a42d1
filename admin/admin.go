// Package admin serves a read-only JSON view of the plugin registry and the
// service registry.
//
// Routes:
//
//	GET /plugins        registered plugins in registration order
//	GET /plugins/{id}   one plugin
//	GET /services       service slots and their bindings
//	GET /health         plugin health, 503 when every plugin failed
//
// Requests go through the registry APIs, so the capability checks of the
// request context apply.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GoCodeAlone/modhost"
	"github.com/GoCodeAlone/modhost/logging"
	"github.com/GoCodeAlone/modhost/policy"
	"github.com/GoCodeAlone/modhost/service"
)

// Plugin is the JSON view of a registered plugin.
type Plugin struct {
	ID            string   `json:"id"`
	Version       string   `json:"version"`
	State         string   `json:"state"`
	Global        bool     `json:"global"`
	DataDirectory string   `json:"dataDirectory"`
	Dependencies  []string `json:"dependencies"`
	Capabilities  []string `json:"capabilities"`
}

// Service is the JSON view of a service slot.
type Service struct {
	Service        string `json:"service"`
	Bound          bool   `json:"bound"`
	Implementation string `json:"implementation,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

type handler struct {
	plugins  *modhost.Manager
	services *service.Registry
	logger   logging.Logger
}

// NewHandler returns the admin router.
func NewHandler(plugins *modhost.Manager, services *service.Registry, logger logging.Logger) http.Handler {
	h := &handler{plugins: plugins, services: services, logger: logging.With(logger, "component", "admin")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/plugins", h.listPlugins)
	r.Get("/plugins/{id}", h.getPlugin)
	r.Get("/services", h.listServices)
	r.Get("/health", h.health)
	return r
}

func (h *handler) listPlugins(w http.ResponseWriter, r *http.Request) {
	plugins, err := h.plugins.GetPlugins(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]Plugin, len(plugins))
	for i, d := range plugins {
		out[i] = pluginView(d)
	}
	h.write(w, http.StatusOK, out)
}

func (h *handler) getPlugin(w http.ResponseWriter, r *http.Request) {
	d, err := h.plugins.GetPlugin(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, http.StatusOK, pluginView(d))
}

func (h *handler) listServices(w http.ResponseWriter, r *http.Request) {
	view, err := h.services.Services(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]Service, 0, view.Len())
	for _, slot := range view.Slots() {
		s := Service{Service: slot.Name(), Bound: slot.Bound()}
		if inst := slot.Instance(); inst != nil {
			s.Implementation = reflect.TypeOf(inst).String()
		}
		out = append(out, s)
	}
	h.write(w, http.StatusOK, out)
}

func pluginView(d *modhost.Description) Plugin {
	p := Plugin{
		ID:            d.ID(),
		Version:       d.Descriptor().Version.String(),
		State:         d.State().String(),
		Global:        d.Global(),
		DataDirectory: d.DataDirectory(),
		Dependencies:  []string{},
		Capabilities:  []string{},
	}
	for _, dep := range d.Dependencies() {
		p.Dependencies = append(p.Dependencies, dep.ID())
	}
	for _, c := range d.Capabilities().Slice() {
		p.Capabilities = append(p.Capabilities, c.String())
	}
	return p
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, modhost.ErrPluginNotFound):
		status = http.StatusNotFound
	case errors.Is(err, policy.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, modhost.ErrNotInitialized):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Admin request failed", "path", r.URL.Path, "error", err)
	}
	h.write(w, status, errorBody{Error: err.Error()})
}

func (h *handler) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("Failed to write admin response", "error", err)
	}
}

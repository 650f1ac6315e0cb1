package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/skunkworks/skunkscrape/internal/plugin"
)

// CatalogHandler serves the manifest's categories and plugins.
type CatalogHandler struct {
	catalog *plugin.Catalog
}

// NewCatalogHandler creates a new CatalogHandler for c.
func NewCatalogHandler(c *plugin.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

type categoryResponse struct {
	Name    string   `json:"name"`
	Plugins []string `json:"plugins"`
}

type listCategoriesResponse struct {
	Categories []categoryResponse `json:"categories"`
}

type pluginResponse struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type listPluginsResponse struct {
	Plugins []pluginResponse `json:"plugins"`
}

// ServeHTTP routes /api/categories, /api/categories/{name} and /api/plugins.
func (h *CatalogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path == "/api/plugins" {
		h.listPlugins(w, r)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/categories")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		h.listCategories(w, r)
		return
	}
	h.getCategory(w, r, name)
}

// listCategories handles GET /api/categories in manifest order.
func (h *CatalogHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	names := h.catalog.Categories()
	response := listCategoriesResponse{
		Categories: make([]categoryResponse, 0, len(names)),
	}
	for _, name := range names {
		plugins, _ := h.catalog.CategoryPlugins(name)
		response.Categories = append(response.Categories, categoryResponse{Name: name, Plugins: plugins})
	}
	writeJSON(w, http.StatusOK, response)
}

// getCategory handles GET /api/categories/{name}.
func (h *CatalogHandler) getCategory(w http.ResponseWriter, r *http.Request, name string) {
	plugins, err := h.catalog.CategoryPlugins(name)
	if err != nil {
		if errors.Is(err, plugin.ErrUnknownCategory) {
			writeError(w, http.StatusNotFound, "Category not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get category")
		return
	}
	writeJSON(w, http.StatusOK, categoryResponse{Name: name, Plugins: plugins})
}

// listPlugins handles GET /api/plugins in manifest order.
func (h *CatalogHandler) listPlugins(w http.ResponseWriter, r *http.Request) {
	names := h.catalog.Plugins()
	response := listPluginsResponse{
		Plugins: make([]pluginResponse, 0, len(names)),
	}
	for _, name := range names {
		category, err := h.catalog.CategoryOf(name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list plugins")
			return
		}
		response.Plugins = append(response.Plugins, pluginResponse{Name: name, Category: category})
	}
	writeJSON(w, http.StatusOK, response)
}

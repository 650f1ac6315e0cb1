package api

import (
	"net/http"

	"github.com/skunkworks/skunkscrape/internal/proxy"
)

// ProxiesHandler lists the configured proxies without their passwords.
type ProxiesHandler struct {
	pool *proxy.Pool
}

// NewProxiesHandler creates a new ProxiesHandler reading from pool.
func NewProxiesHandler(pool *proxy.Pool) *ProxiesHandler {
	return &ProxiesHandler{pool: pool}
}

type proxyResponse struct {
	Index    int    `json:"index"`
	Address  string `json:"address"`
	Label    string `json:"label"`
	Username string `json:"username"`
}

type listProxiesResponse struct {
	Proxies []proxyResponse `json:"proxies"`
}

// ServeHTTP handles GET /api/proxies.
func (h *ProxiesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := h.pool.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load proxies")
		return
	}

	response := listProxiesResponse{
		Proxies: make([]proxyResponse, 0, len(records)),
	}
	for i, rec := range records {
		response.Proxies = append(response.Proxies, proxyResponse{
			Index:    i,
			Address:  rec.Address(),
			Label:    rec.Label(),
			Username: rec.Username,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

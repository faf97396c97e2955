package handler

import (
	"net/http"

	"github.com/edvin/frontstack/internal/api/response"
)

// HealthPath is the path the load balancer probes.
const HealthPath = "/api/health"

// Health answers every method with 200 {"status":"ok"}. It never touches
// the backend, so the probe only reflects the front end itself.
func Health(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package health

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// VersionInfo contains build and version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// LivenessHandler returns the liveness probe handler.
//
// Example response:
//
//	{"status": "ok", "uptime_seconds": 12.5, "timestamp": "2026-01-20T10:30:00Z"}
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusOK, c.CheckLiveness(r.Context()))
	}
}

// ReadinessHandler returns the readiness probe handler: 200 when enough
// backends are healthy, 503 otherwise.
//
// Example response (unavailable):
//
//	{
//	    "status": "unavailable",
//	    "checks": {
//	        "ibit": {"status": "unhealthy", "message": "backend unhealthy: badge expired"}
//	    },
//	    "timestamp": "2026-01-20T10:30:00Z"
//	}
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.CheckReadiness(r.Context())
		code := http.StatusOK
		if status.Status != StatusReady {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, r, code, status)
	}
}

// VersionHandler returns build information.
func VersionHandler(version, commit, buildTime string) http.HandlerFunc {
	info := VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusOK, info)
	}
}

func writeStatus(w http.ResponseWriter, r *http.Request, code int, body any) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(body)
	}
}

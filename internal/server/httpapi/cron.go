package httpapi

import (
	"crypto/subtle"
	"net/http"
)

type cleanupResponse struct {
	Success      bool   `json:"success"`
	DeletedCount int    `json:"deletedCount"`
	FailedCount  int    `json:"failedCount"`
	Error        string `json:"error,omitempty"`
}

// cronCleanup runs one sweep for an external scheduler. When a cron secret
// is configured the caller must present it as a bearer token. A sweep that
// found nothing to do answers 204 with an empty body.
func (s *Server) cronCleanup(w http.ResponseWriter, r *http.Request) {
	if s.opts.CronSecret != "" {
		want := "Bearer " + s.opts.CronSecret
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(want)) != 1 {
			writeJSON(w, http.StatusUnauthorized, cleanupResponse{Error: "unauthorized"})
			return
		}
	}

	res, err := s.deps.Cleanup.Sweep(r.Context(), s.nowFn())
	if err != nil {
		s.logger.Error(r.Context(), "sweep failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, cleanupResponse{Error: "cleanup failed"})
		return
	}
	s.deps.Metrics.ObserveSweep(res)

	if res.Deleted == 0 && res.Failed == 0 && res.Skipped == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{
		Success:      true,
		DeletedCount: res.Deleted,
		FailedCount:  res.Failed,
	})
}

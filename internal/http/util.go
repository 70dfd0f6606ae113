package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
)

const (
	maxBodyBytes = 1 << 20
	maxListLimit = 1000
)

// writeJSON always answers with a JSON envelope; failures are reported in
// the envelope code, not the HTTP status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// queryLimit reads the limit query parameter. Missing or malformed values
// give def; the result is clamped to [1, maxListLimit].
func queryLimit(r *http.Request, def int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		limit = def
	}
	switch {
	case limit < 1:
		return 1
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

// decodeBody reads a JSON body of at most maxBodyBytes into out. An empty
// body leaves out unchanged. On failure it writes the error envelope and
// returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err == nil && len(body) > maxBodyBytes {
		err = errors.New("body too large")
	}
	if err == nil && len(body) > 0 {
		err = json.Unmarshal(body, out)
	}
	if err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return false
	}
	return true
}

// methods wraps h so that other methods get 405.
func methods(h http.HandlerFunc, allowed ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		for _, m := range allowed {
			if req.Method == m {
				h(w, req)
				return
			}
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

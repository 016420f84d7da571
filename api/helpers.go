package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.vocdoni.io/vaas/log"
)

// EndpointWithParam fills the {key} placeholder of an endpoint pattern.
func EndpointWithParam(pattern, key, value string) string {
	return strings.ReplaceAll(pattern, "{"+key+"}", value)
}

// HTTPWriteJSON writes data as a JSON response with status 200.
func HTTPWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrInternal.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
	log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
}

// HTTPWriteOK writes an empty response with status 200.
func HTTPWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/voxprep/voxprep/pkg/gateway/apierror"
	"github.com/voxprep/voxprep/pkg/gateway/mw"
)

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	body, status := apierror.FromError(err, reqID)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apierror.Envelope{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package handlers

import (
	"net/http"

	"github.com/voxprep/voxprep/pkg/core"
	"github.com/voxprep/voxprep/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mw.WriteJSONError(w, r, core.NewInvalidRequestError("not found"), http.StatusNotFound)
}

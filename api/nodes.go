package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/spknetwork/storage-coordinator/modules"
)

// nodesListHandler implements GET /nodes?status=&limit=, a read-only
// operator view over storage node reputation and earnings.
func (api *API) nodesListHandler(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	status := req.URL.Query().Get("status")
	limit := 0
	if q := req.URL.Query().Get("limit"); q != "" {
		if n, err := parsePositiveInt(q); err == nil {
			limit = n
		}
	}

	nodes, err := api.repo.ListNodes(req.Context(), modules.ListFilter{Status: status, Limit: limit})
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, nodes)
}

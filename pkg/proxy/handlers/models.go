package handlers

import (
	"net/http"
	"time"

	"teclab/bitgate/pkg/proxy"
	"teclab/bitgate/pkg/proxy/types"
)

// ModelsHandler serves GET /v1/models.
type ModelsHandler struct {
	models  ModelLister
	ownedBy string
	created int64
}

// NewModelsHandler lists the models of l as owned by ownedBy. created is
// reported as the creation time of every model.
func NewModelsHandler(l ModelLister, ownedBy string, created time.Time) *ModelsHandler {
	return &ModelsHandler{models: l, ownedBy: ownedBy, created: created.Unix()}
}

// ServeHTTP implements http.Handler.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		_ = proxy.WriteErrorResponse(w, types.NewErrorResponse(
			"Method "+r.Method+" not allowed. Use GET instead.",
			types.ErrorTypeInvalidRequest, "method", types.CodeMethodNotAllowed,
		))
		return
	}

	ids := h.models.IDs()
	list := types.ModelList{Object: types.ObjectList, Data: make([]types.ModelObject, 0, len(ids))}
	for _, id := range ids {
		list.Data = append(list.Data, types.ModelObject{
			ID:      id,
			Object:  types.ObjectModel,
			Created: h.created,
			OwnedBy: h.ownedBy,
		})
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, list)
}

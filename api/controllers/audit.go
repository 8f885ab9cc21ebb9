package controllers

import (
	"net/http"

	"github.com/angelmondragon/tenderflow-backend/api/responses"
	"github.com/angelmondragon/tenderflow-backend/internal/audit"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
)

// AuditHistory lists the tender's flushed audit entries, oldest first.
func AuditHistory(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}
		actor, tenderID, err := actorAndTender(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.History(r.Context(), tenderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAuditEntryResponses(entries))
	}
}

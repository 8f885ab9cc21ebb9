package controllers

import (
	"net/http"

	"github.com/angelmondragon/tenderflow-backend/api/responses"
	"github.com/angelmondragon/tenderflow-backend/internal/analysis"
	"github.com/angelmondragon/tenderflow-backend/internal/reports"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
)

// OpeningReport returns the report frozen at close. Submissions are omitted
// while the tender is still sealed.
func OpeningReport(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
			return
		}
		actor, tenderID, err := actorAndTender(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.ForTender(r.Context(), tenderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOpeningReportResponse(view))
	}
}

func OfferAnalysis(svc analysis.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analysis service unavailable"))
			return
		}
		actor, tenderID, err := actorAndTender(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.ForTender(r.Context(), tenderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

package controllers

import (
	"net/http"

	"github.com/danielortuno/splittab-backend/api/middleware"
	"github.com/danielortuno/splittab-backend/api/responses"
	"github.com/danielortuno/splittab-backend/api/validators"
	"github.com/danielortuno/splittab-backend/internal/settlement"
	pkgerrors "github.com/danielortuno/splittab-backend/pkg/errors"
	"github.com/danielortuno/splittab-backend/pkg/logger"
)

// SettleFriend clears the caller's whole global balance with one friend.
func SettleFriend(service settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		callerID := middleware.UserIDFromContext(r.Context())
		friendID, err := validators.ParseUUIDParam(r, "friendID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := service.Settle(r.Context(), callerID, friendID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SettleFriendForEvent clears the caller's balance with one friend inside a
// single event. The global balance follows through the pipeline.
func SettleFriendForEvent(service settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		callerID := middleware.UserIDFromContext(r.Context())
		eventID, err := validators.ParseUUIDParam(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		friendID, err := validators.ParseUUIDParam(r, "friendID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := service.SettleForEvent(r.Context(), callerID, friendID, eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SettlementReverse undoes a settlement the caller took part in.
func SettlementReverse(service settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		callerID := middleware.UserIDFromContext(r.Context())
		settlementID, err := validators.ParseUUIDParam(r, "settlementID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := service.ReverseSettlement(r.Context(), callerID, settlementID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SettlementList returns settlements where the caller is either party.
func SettlementList(service settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		callerID := middleware.UserIDFromContext(r.Context())
		list, err := service.ListForUser(r.Context(), callerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

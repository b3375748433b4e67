package controllers

import (
	"net/http"

	"github.com/danielortuno/splittab-backend/api/middleware"
	"github.com/danielortuno/splittab-backend/api/responses"
	"github.com/danielortuno/splittab-backend/api/validators"
	"github.com/danielortuno/splittab-backend/internal/ledger"
	pkgerrors "github.com/danielortuno/splittab-backend/pkg/errors"
	"github.com/danielortuno/splittab-backend/pkg/logger"
)

// FriendBalanceList returns every pairwise balance the caller appears in.
func FriendBalanceList(service ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		callerID := middleware.UserIDFromContext(r.Context())
		list, err := service.FriendBalances(r.Context(), callerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// FriendBalanceDetail returns the caller's balance with one friend. A missing
// row reads as a zero balance.
func FriendBalanceDetail(service ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		callerID := middleware.UserIDFromContext(r.Context())
		friendID, err := validators.ParseUUIDParam(r, "friendID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := service.FriendBalanceWith(r.Context(), callerID, friendID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if balance == nil {
			responses.WriteSuccess(w, map[string]any{"balance": 0.0})
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// EventBalanceDetail returns the event's cached net balances and optimized
// payment plan, rebuilding the cache when missing.
func EventBalanceDetail(service ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		eventID, err := validators.ParseUUIDParam(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := service.EventBalance(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// EventPairBalanceList returns the per-pair balances scoped to one event.
func EventPairBalanceList(service ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		eventID, err := validators.ParseUUIDParam(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := service.EventPairBalances(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

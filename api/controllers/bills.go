package controllers

import (
	"net/http"

	"github.com/danielortuno/splittab-backend/api/middleware"
	"github.com/danielortuno/splittab-backend/api/responses"
	"github.com/danielortuno/splittab-backend/api/validators"
	"github.com/danielortuno/splittab-backend/internal/bills"
	pkgerrors "github.com/danielortuno/splittab-backend/pkg/errors"
	"github.com/danielortuno/splittab-backend/pkg/logger"
)

// BillCreate creates a bill owned by the caller and queues it through the
// ledger pipeline.
func BillCreate(service bills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bills service unavailable"))
			return
		}

		callerID := middleware.UserIDFromContext(r.Context())

		var input bills.CreateBillInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bill, err := service.Create(r.Context(), callerID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, bill)
	}
}

// BillUpdate applies a partial edit to a bill the caller owns.
func BillUpdate(service bills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bills service unavailable"))
			return
		}

		callerID := middleware.UserIDFromContext(r.Context())
		billID, err := validators.ParseUUIDParam(r, "billID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input bills.UpdateBillInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bill, err := service.Update(r.Context(), callerID, billID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bill)
	}
}

// BillDelete removes a bill the caller owns and queues the aggregate unwind.
func BillDelete(service bills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bills service unavailable"))
			return
		}

		callerID := middleware.UserIDFromContext(r.Context())
		billID, err := validators.ParseUUIDParam(r, "billID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := service.Delete(r.Context(), callerID, billID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

// BillDetail returns a bill the caller owns or participates in.
func BillDetail(service bills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bills service unavailable"))
			return
		}

		callerID := middleware.UserIDFromContext(r.Context())
		billID, err := validators.ParseUUIDParam(r, "billID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bill, err := service.Get(r.Context(), callerID, billID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bill)
	}
}

// BillList returns the caller's owned bills.
func BillList(service bills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bills service unavailable"))
			return
		}

		callerID := middleware.UserIDFromContext(r.Context())
		list, err := service.ListByOwner(r.Context(), callerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bills"))
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// EventBillList returns the bills attached to an event.
func EventBillList(service bills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bills service unavailable"))
			return
		}

		eventID, err := validators.ParseUUIDParam(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := service.ListByEvent(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list event bills"))
			return
		}
		responses.WriteSuccess(w, list)
	}
}

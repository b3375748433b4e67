package controllers

import (
	"net/http"

	"github.com/danielortuno/splittab-backend/api/middleware"
	"github.com/danielortuno/splittab-backend/api/responses"
	"github.com/danielortuno/splittab-backend/api/validators"
	"github.com/danielortuno/splittab-backend/internal/friends"
	pkgerrors "github.com/danielortuno/splittab-backend/pkg/errors"
	"github.com/danielortuno/splittab-backend/pkg/logger"
)

type updateFriendsRequest struct {
	Friends []friends.Friend `json:"friends" validate:"required"`
}

// FriendsList returns the caller's normalized friend list.
func FriendsList(service friends.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "friends service unavailable"))
			return
		}

		callerID := middleware.UserIDFromContext(r.Context())
		list, err := service.List(r.Context(), callerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// FriendsUpdate replaces the caller's friend list. Added links queue the
// backfill scan.
func FriendsUpdate(service friends.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if service == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "friends service unavailable"))
			return
		}

		callerID := middleware.UserIDFromContext(r.Context())

		var body updateFriendsRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := service.Update(r.Context(), callerID, body.Friends)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

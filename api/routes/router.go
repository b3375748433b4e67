package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/danielortuno/splittab-backend/api/controllers"
	"github.com/danielortuno/splittab-backend/api/middleware"
	"github.com/danielortuno/splittab-backend/internal/bills"
	"github.com/danielortuno/splittab-backend/internal/events"
	"github.com/danielortuno/splittab-backend/internal/friends"
	"github.com/danielortuno/splittab-backend/internal/ledger"
	"github.com/danielortuno/splittab-backend/internal/settlement"
	"github.com/danielortuno/splittab-backend/pkg/config"
	"github.com/danielortuno/splittab-backend/pkg/db"
	"github.com/danielortuno/splittab-backend/pkg/logger"
	"github.com/danielortuno/splittab-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	billsService bills.Service,
	friendsService friends.Service,
	ledgerService ledger.Service,
	settlementService settlement.Service,
	eventsService events.Service,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/bills", func(r chi.Router) {
			r.Get("/", controllers.BillList(billsService, logg))
			r.Post("/", controllers.BillCreate(billsService, logg))
			r.Get("/{billID}", controllers.BillDetail(billsService, logg))
			r.Put("/{billID}", controllers.BillUpdate(billsService, logg))
			r.Delete("/{billID}", controllers.BillDelete(billsService, logg))
		})

		r.Route("/friends", func(r chi.Router) {
			r.Get("/", controllers.FriendsList(friendsService, logg))
			r.Put("/", controllers.FriendsUpdate(friendsService, logg))
		})

		r.Route("/balances", func(r chi.Router) {
			r.Get("/friends", controllers.FriendBalanceList(ledgerService, logg))
			r.Get("/friends/{friendID}", controllers.FriendBalanceDetail(ledgerService, logg))
		})

		r.Route("/settlements", func(r chi.Router) {
			r.Get("/", controllers.SettlementList(settlementService, logg))
			r.Post("/friends/{friendID}", controllers.SettleFriend(settlementService, logg))
			r.Delete("/{settlementID}", controllers.SettlementReverse(settlementService, logg))
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", controllers.EventList(eventsService, logg))
			r.Post("/", controllers.EventCreate(eventsService, logg))
			r.Route("/{eventID}", func(r chi.Router) {
				r.Get("/", controllers.EventDetail(eventsService, logg))
				r.Delete("/", controllers.EventDelete(eventsService, logg))
				r.Get("/bills", controllers.EventBillList(billsService, logg))
				r.Get("/balance", controllers.EventBalanceDetail(ledgerService, logg))
				r.Get("/balances/pairs", controllers.EventPairBalanceList(ledgerService, logg))
				r.Post("/settlements/friends/{friendID}", controllers.SettleFriendForEvent(settlementService, logg))
				r.Route("/invitations", func(r chi.Router) {
					r.Get("/", controllers.EventInvitationList(eventsService, logg))
					r.Post("/", controllers.EventInvite(eventsService, logg))
				})
			})
		})
	})

	return r
}

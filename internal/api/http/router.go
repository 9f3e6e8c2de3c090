package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"pickup-backend/internal/config"
	"pickup-backend/internal/metrics"
)

// NewRouter registers every route by name; the name decides the security level.
func NewRouter(h *Handler, auth *Authenticator, limiter *RateLimiter) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusNotFound, apiError{Kind: "not_found", Reason: reasonRouteNotFound, Message: "no such route"})
	})
	router.Use(Instrument, auth.Middleware)

	limited := func(fn http.HandlerFunc) http.HandlerFunc {
		if limiter == nil {
			return fn
		}
		return limiter.Wrap(fn)
	}

	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet).Name(config.RouteHealth)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet).Name(config.RouteMetrics)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/discover", h.Discover).Methods(http.MethodGet).Name(config.RouteDiscover)
	api.HandleFunc("/me/memberships", h.ListMemberships).Methods(http.MethodGet).Name(config.RouteListMemberships)

	api.HandleFunc("/activities", h.CreateActivity).Methods(http.MethodPost).Name(config.RouteCreateActivity)
	api.HandleFunc("/activities/{id:[0-9]+}", h.GetActivity).Methods(http.MethodGet).Name(config.RouteGetActivity)
	api.HandleFunc("/activities/{id:[0-9]+}", h.UpdateActivity).Methods(http.MethodPatch).Name(config.RouteUpdateActivity)
	api.HandleFunc("/activities/{id:[0-9]+}", h.DeleteActivity).Methods(http.MethodDelete).Name(config.RouteDeleteActivity)
	api.HandleFunc("/activities/{id:[0-9]+}/cancel", h.CancelActivity).Methods(http.MethodPost).Name(config.RouteCancelActivity)
	api.HandleFunc("/activities/{id:[0-9]+}/lock", h.LockStatus).Methods(http.MethodGet).Name(config.RouteLockStatus)

	api.HandleFunc("/activities/{id:[0-9]+}/join", limited(h.Join)).Methods(http.MethodPost).Name(config.RouteJoin)
	api.HandleFunc("/activities/{id:[0-9]+}/leave", limited(h.Leave)).Methods(http.MethodPost).Name(config.RouteLeave)
	api.HandleFunc("/activities/{id:[0-9]+}/participants/{participantId:[0-9]+}", h.RemoveParticipant).
		Methods(http.MethodDelete).Name(config.RouteRemove)
	api.HandleFunc("/activities/{id:[0-9]+}/participants/{participantId:[0-9]+}/demote", h.DemoteParticipant).
		Methods(http.MethodPost).Name(config.RouteDemote)
	api.HandleFunc("/activities/{id:[0-9]+}/capacity", h.UpdateCapacity).Methods(http.MethodPut).Name(config.RouteUpdateCapacity)
	api.HandleFunc("/activities/{id:[0-9]+}/roster", h.Roster).Methods(http.MethodGet).Name(config.RouteRoster)
	api.HandleFunc("/activities/{id:[0-9]+}/watch", h.Watch).Methods(http.MethodGet).Name(config.RouteWatch)

	return router
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const requestTimeout = 15 * time.Second

// Routes builds the router. metricsHandler may be nil. The dev faucet is mounted only
// when the handler has one.
func (h *Handler) Routes(m *Middleware, metricsHandler http.Handler, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(m.CORS(corsOrigins))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		// Long-lived, so outside the timeout and compression
		r.Get("/stream", h.HandleSSE)
		if h.hub != nil {
			r.Get("/ws", h.hub.HandleWebSocket)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Use(m.Timeout(requestTimeout))
			r.Use(m.RateLimit(rateLimitRPM))

			r.Get("/params", h.GetParams)

			// Markets
			r.Get("/markets", h.ListMarkets)
			r.Get("/markets/{asset}", h.GetMarket)

			// Conversions
			r.Route("/assets/{asset}", func(r chi.Router) {
				r.Get("/usd", h.GetUsdValue)
				r.Get("/amount", h.GetAssetAmount)
			})

			// Accounts
			r.Route("/accounts/{address}", func(r chi.Router) {
				r.Get("/", h.GetAccount)
				r.Get("/events", h.GetAccountEvents)
			})

			// Ledger operations
			r.Post("/collateral/deposit", h.Deposit)
			r.Post("/collateral/redeem", h.Redeem)
			r.Post("/debt/mint", h.Mint)
			r.Post("/debt/burn", h.Burn)
			r.Post("/positions/open", h.OpenPosition)
			r.Post("/positions/close", h.ClosePosition)
			r.Post("/liquidations", h.Liquidate)

			if h.faucet != nil {
				r.Post("/dev/faucet", h.Faucet)
			}
		})
	})

	return r
}

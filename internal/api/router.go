package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/virelabs/launchpad/internal/api/handler"
	"github.com/virelabs/launchpad/internal/api/middleware"
	"github.com/virelabs/launchpad/internal/config"
	"github.com/virelabs/launchpad/internal/plan"
	"github.com/virelabs/launchpad/internal/repository"
	"github.com/virelabs/launchpad/internal/service"
	"github.com/virelabs/launchpad/internal/ws"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	PoolSvc        *service.PoolService
	QuoteSvc       *service.QuoteService
	LaunchSvc      *service.LaunchService
	PoolRepo       *repository.PoolRepository
	SettlementRepo *repository.SettlementRepository
	PlanCfg        plan.Config
	Hub            *ws.Hub
	Cfg            *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, CORS, and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		payload := gin.H{"status": "ok"}
		if deps.Hub != nil {
			payload["ws_clients"] = deps.Hub.ConnectedCount()
		}
		c.JSON(http.StatusOK, payload)
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	poolH := handler.NewPoolHandler(deps.PoolSvc, deps.PoolRepo)
	quoteH := handler.NewQuoteHandler(deps.QuoteSvc)
	distH := handler.NewDistributionHandler(deps.LaunchSvc, deps.SettlementRepo, deps.PlanCfg)

	// ── API key middleware (shared by all mutating routes) ────────────────────
	keyMW := middleware.APIKeyMiddleware(deps.Cfg.Server.APIKey)

	// ── Rate limiters ─────────────────────────────────────────────────────────
	// 30 req/s per IP on reads; 5 req/s with no extra burst headroom on
	// launches and trades.
	readRL := middleware.RateLimitMiddleware(30)
	writeRL := middleware.RateLimitMiddlewareBurst(5, 5)

	api := r.Group("/api")
	{
		// ── Pool (reads public, writes keyed) ────────────────────────────────
		pool := api.Group("/pool")
		pool.Use(readRL)
		{
			pool.GET("/stats", poolH.Stats)
			pool.GET("/items", poolH.ListItems)
			pool.GET("/items/:identifier", poolH.GetItem)

			keyed := pool.Group("")
			keyed.Use(keyMW)
			{
				keyed.POST("/claim", poolH.Claim)
				keyed.POST("/release", poolH.Release)
				keyed.POST("/items", poolH.CreateItem)
				keyed.POST("/items/:identifier/reset", poolH.ResetErrored)
			}
		}

		// ── Quotes (reads public, commits keyed + throttled) ─────────────────
		quotes := api.Group("/quotes")
		{
			quotes.GET("/:mint/buy", readRL, quoteH.QuoteBuy)
			quotes.GET("/:mint/sell", readRL, quoteH.QuoteSell)
			quotes.POST("/:mint/buy", writeRL, keyMW, quoteH.CommitBuy)
			quotes.POST("/:mint/sell", writeRL, keyMW, quoteH.CommitSell)
		}

		// ── Distributions & launches ─────────────────────────────────────────
		api.POST("/distributions/plan", readRL, distH.PreviewPlan)
		api.GET("/batches/:id", readRL, distH.GetBatch)
		api.POST("/launches", writeRL, keyMW, distH.Launch)
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In development all origins are allowed; in production only configured origins.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowed := make(map[string]bool)
	for _, o := range splitOrigins(cfg.Server.AllowedOrigins) {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() || len(allowed) == 0 {
			// Development: allow any origin
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// splitOrigins parses the comma-separated origin allowlist from config.
func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

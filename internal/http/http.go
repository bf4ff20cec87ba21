package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"chainvend.com/internal/config"
	"chainvend.com/internal/handler"
	"chainvend.com/internal/http/router"
	"chainvend.com/pkg/common"
	"chainvend.com/pkg/middleware"
	"chainvend.com/pkg/ratelimit"
)

// Handlers groups everything the router mounts. A nil handler leaves its routes out.
type Handlers struct {
	Purchase *handler.Purchase
	Catalog  *handler.Catalog
	Wallet   *handler.Wallet
	Merchant *handler.Merchant
}

// NewEngine builds the gin engine. The rate limit janitor lives as long as ctx.
func NewEngine(ctx context.Context, name string, cfg config.HTTPConfig, h Handlers) *gin.Engine {
	store := ratelimit.NewStore(rate.Limit(cfg.RateLimit), cfg.Burst, 10*time.Minute)
	store.StartJanitor(ctx, time.Minute)

	r := gin.New()
	p := ginprom.NewPrometheus("chainvend")
	p.Use(r)
	r.Use(
		otelgin.Middleware(name),
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
		middleware.RateLimit(store),
	)
	r.GET("/healthz", func(c *gin.Context) { common.Success(c, gin.H{"status": "ok"}) })

	api := r.Group("/api", middleware.RequireUser())
	if h.Purchase != nil {
		router.Purchase(api, h.Purchase)
	}
	if h.Catalog != nil {
		router.Catalog(api, h.Catalog)
	}
	if h.Wallet != nil {
		router.Wallet(api, h.Wallet)
	}
	if h.Merchant != nil {
		router.Merchant(api, h.Merchant)
	}
	return r
}

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        handler,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}

package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// HealthReporter exposes the last dependency probe.
type HealthReporter interface {
	Report() (map[string]string, bool)
}

type RouterConfig struct {
	Carts      *CartHandler
	Orders     *OrdersHandler
	Products   *ProductHandler
	Promotions *PromotionHandler
	Payments   *PaymentHandler
	Auth       *Authenticator
	Health     HealthReporter
	Logger     *zap.Logger
	Timeout    time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", healthHandler(cfg.Health))

	r.Route("/public", func(r chi.Router) {
		r.Get("/brands/{categoryId}", cfg.Products.ListBrands)
		r.Get("/attribute-types/{categoryId}", cfg.Products.ListAttributeTypes)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(cfg.Auth.Authenticate)

		r.Get("/products", cfg.Products.List)
		r.Get("/products/{id}", cfg.Products.Get)
		r.Get("/product-variant", cfg.Products.ListVariants)

		r.Route("/carts", func(r chi.Router) {
			r.Get("/", cfg.Carts.GetCart)
			r.Post("/", cfg.Carts.AddItem)
			r.Delete("/", cfg.Carts.ClearCart)
			r.With(RequireCustomer).Post("/merge", cfg.Carts.MergeCarts)
			r.Put("/{id}", cfg.Carts.UpdateQuantity)
			r.Delete("/{id}", cfg.Carts.RemoveItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(RequireCustomer)
			r.Post("/", cfg.Orders.CreateOrder)
			r.Get("/customer", cfg.Orders.ListOrders)
			r.Put("/cancel/{id}", cfg.Orders.CancelOrder)
			r.Post("/confirm/{id}", cfg.Orders.ConfirmOrder)
			r.Get("/{id}", cfg.Orders.GetOrder)
			r.With(RequireAdmin).Put("/{id}/status", cfg.Orders.UpdateStatus)
		})

		r.Route("/promotions", func(r chi.Router) {
			r.Get("/", cfg.Promotions.ListActive)
			r.With(RequireCustomer).Post("/apply", cfg.Promotions.Apply)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/all", cfg.Promotions.ListAll)
				r.Post("/", cfg.Promotions.Create)
				r.Get("/{id}", cfg.Promotions.Get)
				r.Put("/{id}", cfg.Promotions.Update)
				r.Delete("/{id}", cfg.Promotions.Delete)
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/vnpay-return", cfg.Payments.VNPayReturn)
			r.With(RequireCustomer).Post("/create", cfg.Payments.Create)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/{orderId}", cfg.Payments.GetPayment)
				r.Put("/{orderId}", cfg.Payments.UpdatePayment)
				r.Delete("/{orderId}", cfg.Payments.DeletePayment)
			})
		})

		r.Route("/shippings", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/{orderId}", cfg.Payments.GetShipping)
			r.Put("/{orderId}", cfg.Payments.UpdateShipping)
			r.Delete("/{orderId}", cfg.Payments.DeleteShipping)
		})
	})

	return otelhttp.NewHandler(r, "storefront",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

func healthHandler(reporter HealthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reporter == nil {
			respondJSON(w, http.StatusOK, "ok", nil)
			return
		}
		report, healthy := reporter.Report()
		if !healthy {
			respondJSON(w, http.StatusServiceUnavailable, "unhealthy", report)
			return
		}
		respondJSON(w, http.StatusOK, "ok", report)
	}
}

package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services bundles the handlers' collaborators.
type Services struct {
	Holds    HoldCreator
	Orders   OrderPlacer
	Payments PaymentProcessor
	Reclaim  HoldReclaimer
	Products ProductReader
	Admin    ProductAdmin
	DB       Pinger
}

// RouterConfig configures NewRouter. Gatherer defaults to the Prometheus
// default registry.
type RouterConfig struct {
	CORSOrigins []string
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger
}

// NewRouter wires every endpoint behind request logging and CORS.
func NewRouter(svc Services, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := mux.NewRouter()
	r.Handle("/health", HandleHealth(svc.DB)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.Handle("/holds", HandleCreateHold(svc.Holds, logger)).Methods(http.MethodPost)
	r.Handle("/orders", HandlePlaceOrder(svc.Orders, logger)).Methods(http.MethodPost)
	r.Handle("/payments/webhook", HandlePaymentWebhook(svc.Payments, logger)).Methods(http.MethodPost)
	r.Handle("/internal/holds/{id}/reclaim", HandleReclaimHold(svc.Reclaim, logger)).Methods(http.MethodPost)

	r.Handle("/products/{id}", HandleGetProduct(svc.Products, logger)).Methods(http.MethodGet)
	r.Handle("/admin/products", HandleListProducts(svc.Admin, logger)).Methods(http.MethodGet)
	r.Handle("/admin/products", HandleCreateProduct(svc.Admin, logger)).Methods(http.MethodPost)

	r.NotFoundHandler = NotFoundHandler()
	r.MethodNotAllowedHandler = MethodNotAllowedHandler()

	// CORS wraps the router so preflights never reach method matching.
	return RequestLogger(logger)(CORS(cfg.CORSOrigins)(r))
}

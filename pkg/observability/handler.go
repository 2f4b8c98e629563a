package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus exposition handler for the default
// registry, which is where the OTel Prometheus exporter publishes. Hosts
// mount it wherever they serve /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

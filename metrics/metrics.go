package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	BatchesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_indexer_batches_processed_total",
		Help: "Total number of block batches committed.",
	})
	BatchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_indexer_batch_retries_total",
		Help: "Total number of batch processing retries.",
	})
	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_indexer_stream_reconnects_total",
		Help: "Total number of stream provider reconnects.",
	})
	FilterReapplies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_indexer_filter_reapplies_total",
		Help: "Total number of resubscriptions caused by filter set growth.",
	})

	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_indexer_events_processed_total",
		Help: "Total number of events decoded and dispatched.",
	})
	EventsUnknown = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_indexer_events_unknown_total",
		Help: "Total number of events skipped for an unregistered selector.",
	})
	EventsTruncated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_indexer_events_truncated_total",
		Help: "Total number of events skipped for a malformed payload.",
	})
	HandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_indexer_handler_errors_total",
		Help: "Total number of isolated handler failures.",
	}, []string{"handler"})

	EntityUpserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_indexer_entity_upserts_total",
		Help: "Total number of aggregate row upserts.",
	}, []string{"entity"})
	TopicsDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_indexer_topics_discovered_total",
		Help: "Total number of topic contracts added via factory events.",
	})
)

// StartMetricsServer exposes the prometheus registry on its own listener.
func StartMetricsServer(logger logrus.FieldLogger, host string, port string) error {
	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "9090"
	}

	srv := &http.Server{
		Addr:    host + ":" + port,
		Handler: promhttp.Handler(),
	}

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	go func() {
		logger.Infof("metrics server listening on %v", srv.Addr)
		if err := srv.Serve(listener); err != nil {
			logger.WithError(err).Fatal("Error serving metrics")
		}
	}()

	return nil
}

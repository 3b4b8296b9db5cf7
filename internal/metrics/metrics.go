package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchPasses counts executions of the recurring scan tick.
	DispatchPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wacast_dispatch_passes_total",
		Help: "Number of scheduled dispatch passes executed.",
	})

	// DispatchPassDuration observes the wall-clock time of one pass.
	DispatchPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wacast_dispatch_pass_duration_seconds",
		Help:    "Duration of one scheduled dispatch pass.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// MessagesDispatched counts successful sends, by job kind.
	MessagesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wacast_messages_dispatched_total",
		Help: "Number of messages dispatched to recipients.",
	}, []string{"kind"})

	// RecipientsSkipped counts recipients not sent to, by reason.
	RecipientsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wacast_recipients_skipped_total",
		Help: "Number of recipients skipped during dispatch.",
	}, []string{"kind", "reason"})

	// SendFailures counts send errors, by job kind.
	SendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wacast_send_failures_total",
		Help: "Number of failed send attempts.",
	}, []string{"kind"})

	// JobsCompleted counts jobs whose sent flag was persisted.
	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wacast_jobs_completed_total",
		Help: "Number of scheduled jobs fully dispatched.",
	}, []string{"kind"})

	// InboundEvents counts inbound message events, by routing outcome.
	InboundEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wacast_inbound_events_total",
		Help: "Number of inbound message events processed.",
	}, []string{"outcome"})
)

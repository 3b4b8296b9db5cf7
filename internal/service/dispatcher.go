package service

import (
	"context"
	"fmt"
	"time"

	apperrors "wacast/internal/errors"
	"wacast/internal/metrics"
	"wacast/internal/models"
	"wacast/internal/tracing"
	"wacast/pkg/wagateway/types"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	jobKindBroadcast       = "broadcast"
	jobKindCampaign        = "campaign"
	jobKindCampaignMessage = "campaign_message"
)

// DispatchStore is the persistence surface of the dispatch engine.
type DispatchStore interface {
	DueBroadcasts(ctx context.Context, now time.Time) ([]models.Broadcast, error)
	MarkBroadcastSent(ctx context.Context, pk int64, at time.Time) error
	UnsentCampaigns(ctx context.Context) ([]models.Campaign, error)
	MarkCampaignSent(ctx context.Context, pk int64, at time.Time) error
	DueCampaignMessages(ctx context.Context, now time.Time) ([]models.CampaignMessage, error)
	MarkCampaignMessageSent(ctx context.Context, pk int64, at time.Time) error
}

// dispatchJob is the common shape the pass loop works on, regardless of
// which table the job came from.
type dispatchJob struct {
	kind       string
	key        string
	sessionID  string
	message    string
	recipients []string
	delay      time.Duration
	markSent   func(ctx context.Context, at time.Time) error
}

// Dispatcher runs the recurring scan over due jobs and delivers each
// job's message to its recipients in stored order.
type Dispatcher struct {
	store        DispatchStore
	registry     *Registry
	ledger       *DedupLedger
	pacer        *Pacer
	logger       *logrus.Logger
	defaultDelay time.Duration

	cron *cron.Cron
}

func NewDispatcher(store DispatchStore, registry *Registry, ledger *DedupLedger, cfg models.DispatchConfig, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		store:        store,
		registry:     registry,
		ledger:       ledger,
		pacer:        NewPacer(),
		logger:       logger,
		defaultDelay: time.Duration(cfg.DefaultDelayMs) * time.Millisecond,
	}
}

// Start schedules the recurring pass. The spec is a cron expression,
// "@every 1m" by default.
func (d *Dispatcher) Start(ctx context.Context, spec string) error {
	if d.cron != nil {
		return fmt.Errorf("dispatcher already started")
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		d.RunPass(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid dispatch spec %q: %w", spec, err)
	}
	d.cron = c
	c.Start()
	d.logger.WithField("spec", spec).Info("Dispatch engine started")
	return nil
}

// Stop halts the tick and waits for a running pass to finish.
func (d *Dispatcher) Stop() {
	if d.cron == nil {
		return
	}
	<-d.cron.Stop().Done()
	d.logger.Info("Dispatch engine stopped")
}

// RunPass executes one full scan: due broadcasts, pending campaign
// registration blasts, then due campaign messages. Jobs run
// sequentially; a failure in one job never aborts the rest of the pass.
func (d *Dispatcher) RunPass(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "dispatch.pass")
	defer span.End()

	start := time.Now()
	metrics.DispatchPasses.Inc()

	jobs, err := d.collectDue(ctx, start)
	if err != nil {
		span.RecordError(err)
		d.logger.WithError(err).Error("Failed to collect due jobs")
		return
	}
	span.SetAttributes(attribute.Int("jobs.due", len(jobs)))

	for _, job := range jobs {
		if ctx.Err() != nil {
			d.logger.Info("Dispatch pass cancelled")
			break
		}
		d.dispatch(ctx, job)
	}

	metrics.DispatchPassDuration.Observe(time.Since(start).Seconds())
}

func (d *Dispatcher) collectDue(ctx context.Context, now time.Time) ([]dispatchJob, error) {
	var jobs []dispatchJob

	broadcasts, err := d.store.DueBroadcasts(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("due broadcasts: %w", err)
	}
	for i := range broadcasts {
		b := broadcasts[i]
		jobs = append(jobs, dispatchJob{
			kind:       jobKindBroadcast,
			key:        JobKey(jobKindBroadcast, b.ID),
			sessionID:  b.SessionID,
			message:    b.Message,
			recipients: b.Recipients,
			delay:      b.Delay(),
			markSent: func(ctx context.Context, at time.Time) error {
				return d.store.MarkBroadcastSent(ctx, b.PK, at)
			},
		})
	}

	campaigns, err := d.store.UnsentCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("unsent campaigns: %w", err)
	}
	for i := range campaigns {
		c := campaigns[i]
		jobs = append(jobs, dispatchJob{
			kind:       jobKindCampaign,
			key:        JobKey(jobKindCampaign, c.ID),
			sessionID:  c.SessionID,
			message:    blastMessage(c),
			recipients: blastRecipients(c.Recipients),
			delay:      c.Delay(),
			markSent: func(ctx context.Context, at time.Time) error {
				return d.store.MarkCampaignSent(ctx, c.PK, at)
			},
		})
	}

	messages, err := d.store.DueCampaignMessages(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("due campaign messages: %w", err)
	}
	for i := range messages {
		m := messages[i]
		jobs = append(jobs, dispatchJob{
			kind:       jobKindCampaignMessage,
			key:        JobKey(jobKindCampaignMessage, m.ID),
			sessionID:  m.SessionID,
			message:    m.Message,
			recipients: m.Recipients,
			delay:      m.Delay(),
			markSent: func(ctx context.Context, at time.Time) error {
				return d.store.MarkCampaignMessageSent(ctx, m.PK, at)
			},
		})
	}

	return jobs, nil
}

// blastMessage is the initial campaign announcement: the registration
// message plus the keyword the recipient replies with to join.
func blastMessage(c models.Campaign) string {
	if c.SyntaxRegistration == "" {
		return c.RegistrationMessage
	}
	return c.RegistrationMessage + " " + c.SyntaxRegistration
}

// blastRecipients filters a campaign allow-list down to addressable
// entries; the wildcard admits senders but is not a destination.
func blastRecipients(recipients []string) []string {
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r == models.RecipientWildcard {
			continue
		}
		out = append(out, r)
	}
	return out
}

// dispatch delivers one job. The job's sent flag is persisted only
// after the recipient loop completes, so an interrupted job is
// re-scanned on the next tick with the ledger guarding recipients that
// already got the message.
func (d *Dispatcher) dispatch(ctx context.Context, job dispatchJob) {
	log := d.logger.WithFields(logrus.Fields{
		"kind": job.kind,
		"job":  job.key,
	})

	if job.sessionID == "" {
		log.Warn("Job has no linked session, skipping")
		metrics.RecipientsSkipped.WithLabelValues(job.kind, "no_session").Add(float64(len(job.recipients)))
		return
	}
	handle, err := d.registry.Lookup(job.sessionID)
	if err != nil {
		apperrors.LogWarn(d.logger, err, "Session not live, skipping job until next pass", logrus.Fields{
			"kind":    job.kind,
			"job":     job.key,
			"session": job.sessionID,
		})
		metrics.RecipientsSkipped.WithLabelValues(job.kind, "session_offline").Add(float64(len(job.recipients)))
		return
	}

	ctx, span := tracing.StartSpan(ctx, "dispatch.job",
		attribute.String("job.kind", job.kind),
		attribute.Int("job.recipients", len(job.recipients)))
	defer span.End()

	delay := job.delay
	if delay <= 0 {
		delay = d.defaultDelay
	}

	for i, recipient := range job.recipients {
		if d.ledger.AlreadyProcessed(job.key, recipient) {
			metrics.RecipientsSkipped.WithLabelValues(job.kind, "already_sent").Inc()
			continue
		}

		jid := CanonicalJID(recipient)
		if _, err := handle.Send(ctx, jid, job.message, &types.SendOptions{}); err != nil {
			if ctx.Err() != nil {
				log.Info("Delivery interrupted, job stays due")
				return
			}
			metrics.SendFailures.WithLabelValues(job.kind).Inc()
			apperrors.LogError(d.logger, err, "Failed to send, continuing with remaining recipients", logrus.Fields{
				"kind":      job.kind,
				"job":       job.key,
				"recipient": recipient,
			})
			continue
		}

		d.ledger.MarkProcessed(job.key, recipient)
		metrics.MessagesDispatched.WithLabelValues(job.kind).Inc()

		last := i == len(job.recipients)-1
		if err := d.pacer.Pace(ctx, last, delay); err != nil {
			log.Info("Delivery interrupted, job stays due")
			return
		}
	}

	if err := job.markSent(ctx, time.Now()); err != nil {
		span.RecordError(err)
		log.WithError(err).Error("Failed to persist sent flag, job will be re-scanned")
		return
	}
	d.ledger.Forget(job.key)
	metrics.JobsCompleted.WithLabelValues(job.kind).Inc()
	log.WithField("recipients", len(job.recipients)).Info("Job dispatched")
}

// Package dispatcher sends one outreach email per contactable school and
// records each success before moving on.
package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/ServanKorkmaz/mail-automation/internal/metrics"
	"github.com/ServanKorkmaz/mail-automation/internal/retry"
	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

// SentTopic is the topic outreach events are published to by default.
const SentTopic = "outreach.sent"

// Default inter-send delay bounds.
const (
	DefaultMinDelay = 15 * time.Second
	DefaultMaxDelay = 45 * time.Second
)

// Config controls what is sent and how fast.
type Config struct {
	Enabled  bool          `mapstructure:"enabled"`
	DryRun   bool          `mapstructure:"dry_run"`
	Limit    int           `mapstructure:"limit"`
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
	Subject  string        `mapstructure:"subject"`
	Body     string        `mapstructure:"body"`
	Topic    string        `mapstructure:"topic"`
}

// Applier persists a record mutation.
type Applier interface {
	Apply(ctx context.Context, rec school.Record) (school.Record, error)
}

// IDGenerator produces unique event identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Deps are the collaborators a Dispatcher needs. Publisher, Clock and IDs
// are optional.
type Deps struct {
	Sender    school.Sender
	Store     Applier
	Publisher school.Publisher
	Clock     school.Clock
	IDs       IDGenerator
	Policy    retry.Policy
}

// SentEvent is published after each successful send.
type SentEvent struct {
	EventID string    `json:"event_id,omitempty"`
	RunID   string    `json:"run_id,omitempty"`
	School  string    `json:"school"`
	Email   string    `json:"email"`
	Website string    `json:"website,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// Summary counts dispatch outcomes for one pass.
type Summary struct {
	Eligible int
	Sent     int
	Failed   int
	DryRun   int
}

// Dispatcher renders and sends outreach messages.
type Dispatcher struct {
	cfg     Config
	deps    Deps
	subject *template.Template
	body    *template.Template
	sleep   func(ctx context.Context, d time.Duration) bool
	logger  *zap.Logger
}

// New parses the message templates and builds a Dispatcher.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Dispatcher, error) {
	if deps.Sender == nil && cfg.Enabled && !cfg.DryRun {
		return nil, errors.New("dispatcher needs a sender")
	}
	if deps.Store == nil {
		return nil, errors.New("dispatcher needs a store")
	}
	if cfg.MinDelay <= 0 && cfg.MaxDelay <= 0 {
		cfg.MinDelay, cfg.MaxDelay = DefaultMinDelay, DefaultMaxDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		return nil, fmt.Errorf("max delay %s is below min delay %s", cfg.MaxDelay, cfg.MinDelay)
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Body == "" {
		cfg.Body = DefaultBody
	}
	if cfg.Topic == "" {
		cfg.Topic = SentTopic
	}
	subject, err := template.New("subject").Option("missingkey=error").Parse(cfg.Subject)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	body, err := template.New("body").Option("missingkey=error").Parse(cfg.Body)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:     cfg,
		deps:    deps,
		subject: subject,
		body:    body,
		sleep:   retry.Sleep,
		logger:  logger.Named("dispatcher"),
	}, nil
}

// Eligible returns the records that may be contacted, in order, capped by
// the configured limit.
func (d *Dispatcher) Eligible(records []school.Record) []school.Record {
	var out []school.Record
	for _, rec := range records {
		if !rec.Contactable() {
			continue
		}
		out = append(out, rec)
		if d.cfg.Limit > 0 && len(out) == d.cfg.Limit {
			break
		}
	}
	return out
}

// Render fills the subject and body templates for rec.
func (d *Dispatcher) Render(rec school.Record) (string, string, error) {
	data := struct {
		Name    string
		Website string
		Email   string
	}{Name: rec.Name, Website: rec.Website, Email: rec.Email}

	var subject, body bytes.Buffer
	if err := d.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := d.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return subject.String(), body.String(), nil
}

// Run sends to every eligible record. A failed send is logged and the
// record stays uncontacted. A persistence failure stops the run.
func (d *Dispatcher) Run(ctx context.Context, records []school.Record, runID string) (Summary, error) {
	eligible := d.Eligible(records)
	summary := Summary{Eligible: len(eligible)}

	if !d.cfg.Enabled && !d.cfg.DryRun {
		d.logger.Info("email sending disabled, skipping dispatch", zap.Int("eligible", len(eligible)))
		return summary, nil
	}
	if len(eligible) == 0 {
		d.logger.Info("no eligible schools to contact")
		return summary, nil
	}
	d.logger.Info("dispatching",
		zap.Int("eligible", len(eligible)),
		zap.Bool("dry_run", d.cfg.DryRun),
	)

	for i, rec := range eligible {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("dispatch canceled: %w", err)
		}
		logger := d.logger.With(zap.String("school", rec.Name), zap.String("email", rec.Email))

		subject, body, err := d.Render(rec)
		if err != nil {
			summary.Failed++
			metrics.ObserveSend(metrics.OutcomeFailed)
			logger.Error("render failed", zap.Error(err))
			continue
		}

		if d.cfg.DryRun {
			summary.DryRun++
			metrics.ObserveSend(metrics.OutcomeDryRun)
			logger.Info("dry run", zap.String("subject", subject), zap.Int("body_bytes", len(body)))
			continue
		}

		if err := d.send(ctx, logger, rec, subject, body); err != nil {
			if ctx.Err() != nil {
				return summary, fmt.Errorf("dispatch canceled: %w", ctx.Err())
			}
			summary.Failed++
			metrics.ObserveSend(metrics.OutcomeFailed)
		} else {
			if _, err := d.deps.Store.Apply(ctx, school.Record{Name: rec.Name, Contacted: school.ContactedYes}); err != nil {
				return summary, fmt.Errorf("mark %q contacted: %w", rec.Name, err)
			}
			summary.Sent++
			metrics.ObserveSend(metrics.OutcomeOK)
			logger.Info("email sent", zap.Int("sent", summary.Sent), zap.Int("of", len(eligible)))
			d.publish(ctx, logger, rec, runID)
		}

		if i < len(eligible)-1 {
			delay := retry.Uniform(d.cfg.MinDelay, d.cfg.MaxDelay)
			logger.Debug("waiting before next email", zap.Duration("delay", delay))
			if !d.sleep(ctx, delay) {
				return summary, fmt.Errorf("dispatch canceled: %w", ctx.Err())
			}
		}
	}
	return summary, nil
}

func (d *Dispatcher) send(ctx context.Context, logger *zap.Logger, rec school.Record, subject, body string) error {
	attempts, err := retry.Do(ctx, d.deps.Policy, func(ctx context.Context, attempt int) error {
		if err := d.deps.Sender.Send(ctx, rec.Email, subject, body); err != nil {
			logger.Debug("send attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		logger.Warn("send failed",
			zap.String("phase", "dispatch"),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}
	return err
}

func (d *Dispatcher) publish(ctx context.Context, logger *zap.Logger, rec school.Record, runID string) {
	if d.deps.Publisher == nil {
		return
	}
	event := SentEvent{
		RunID:   runID,
		School:  rec.Name,
		Email:   rec.Email,
		Website: rec.Website,
		SentAt:  time.Now().UTC(),
	}
	if d.deps.Clock != nil {
		event.SentAt = d.deps.Clock.Now()
	}
	if d.deps.IDs != nil {
		if id, err := d.deps.IDs.NewID(); err == nil {
			event.EventID = id
		}
	}
	if _, err := d.deps.Publisher.Publish(ctx, d.cfg.Topic, event); err != nil {
		logger.Warn("publish outreach event failed", zap.String("topic", d.cfg.Topic), zap.Error(err))
	}
}

package drill

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/pkg/logger"
)

// Defaults applied to zero Config fields.
const (
	defaultCopies       = 3
	defaultTimeout      = 10 * time.Second
	defaultWaitTimeout  = 20 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	directoryPermission = 0o750
)

// Runner executes one script against one server.
type Runner struct {
	cfg    Config
	client *HTTPClient
	log    logger.Logger
	stats  Stats
	events []model.Event
	after  uint64
}

// NewRunner creates a runner, filling in defaults.
func NewRunner(cfg Config, log logger.Logger) *Runner {
	if cfg.Copies <= 0 {
		cfg.Copies = defaultCopies
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if log == nil {
		log = logger.Get().Named("drill")
	}
	return &Runner{cfg: cfg, client: newHTTPClient(cfg.BaseURL, cfg.Timeout), log: log}
}

// Stats returns the statistics of the last run.
func (r *Runner) Stats() Stats { return r.stats }

// Events returns the events received during the last run.
func (r *Runner) Events() []model.Event { return r.events }

// Run executes script and verifies the session it produced.
func (r *Runner) Run(ctx context.Context, script *Script) error {
	r.stats = Stats{StartTime: time.Now()}
	r.events = nil
	r.log.Info(ctx, "starting drill", logger.String("script", script.Name),
		logger.String("baseURL", r.cfg.BaseURL), logger.Int("steps", len(script.Steps)), logger.Int("copies", r.cfg.Copies))

	if err := r.client.Get(ctx, "/healthz", nil); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}
	// Start listening at the current end of the feed.
	if err := r.skipBacklog(ctx); err != nil {
		return fmt.Errorf("read event backlog: %w", err)
	}

	for i, step := range script.Steps {
		if err := r.step(ctx, step); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}

	if _, err := r.poll(ctx); err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	st, err := fetchStatus(ctx, r.client)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	records, err := fetchEvaluations(ctx, r.client, st.SessionID)
	if err != nil {
		return fmt.Errorf("read evaluations: %w", err)
	}
	r.stats.RecordsRetrieved = len(records)
	r.stats.EventsReceived = len(r.events)

	if err := verify(r.events, records, st.SessionID); err != nil {
		return err
	}
	if r.cfg.OutputFile != "" {
		if err := r.saveEvents(ctx); err != nil {
			r.log.Warn(ctx, "failed to save events to file", logger.Error(err))
		}
	}

	r.stats.EndTime = time.Now()
	r.stats.Duration = r.stats.EndTime.Sub(r.stats.StartTime)
	r.displayFinalStats(ctx, st.SessionID)
	return nil
}

func (r *Runner) step(ctx context.Context, s Step) error {
	if s.Command != nil {
		if err := submitCommand(ctx, r.client, *s.Command, r.cfg.Copies, &r.stats, r.log); err != nil {
			return err
		}
	}
	if s.Signal != nil {
		if err := postSignal(ctx, r.client, *s.Signal, &r.stats); err != nil {
			return err
		}
	}
	if s.Pause > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Pause):
		}
	}
	if s.Wait != nil {
		return r.wait(ctx, *s.Wait)
	}
	return nil
}

func (r *Runner) skipBacklog(ctx context.Context) error {
	for {
		page, err := fetchEvents(ctx, r.client, r.after)
		if err != nil {
			return err
		}
		if len(page.Events) == 0 {
			return nil
		}
		r.after = page.Next
	}
}

// poll collects new events and returns them.
func (r *Runner) poll(ctx context.Context) ([]model.Event, error) {
	var fresh []model.Event
	for {
		page, err := fetchEvents(ctx, r.client, r.after)
		if err != nil {
			return fresh, err
		}
		if len(page.Events) == 0 {
			return fresh, nil
		}
		fresh = append(fresh, page.Events...)
		r.events = append(r.events, page.Events...)
		r.after = page.Next
	}
}

// wait polls until w matches a new event or the engine status.
func (r *Runner) wait(ctx context.Context, w WaitSpec) error {
	limit := w.Timeout
	if limit <= 0 {
		limit = r.cfg.WaitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		matched, err := r.matches(ctx, w)
		if err != nil && ctx.Err() == nil {
			return err
		}
		if matched {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w after %s: %+v", ErrWaitTimeout, limit, w)
		case <-ticker.C:
		}
	}
}

func (r *Runner) matches(ctx context.Context, w WaitSpec) (bool, error) {
	if w.Event == "" {
		st, err := fetchStatus(ctx, r.client)
		if err != nil {
			return false, err
		}
		return (w.Active == "" || st.Active == w.Active) && (w.State == "" || st.State == w.State), nil
	}
	fresh, err := r.poll(ctx)
	for _, ev := range fresh {
		if string(ev.Kind) == w.Event &&
			(w.ProcedureID == "" || ev.ProcedureID == w.ProcedureID) &&
			(w.Outcome == "" || string(ev.Outcome) == w.Outcome) &&
			(w.State == "" || string(ev.State) == w.State) {
			if r.cfg.Verbose {
				r.log.Info(ctx, "event matched", logger.Int("seq", int(ev.Seq)), logger.String("kind", w.Event))
			}
			return true, nil
		}
	}
	return false, err
}

// saveEvents writes the received events to OutputFile as a JSON array.
func (r *Runner) saveEvents(ctx context.Context) error {
	dir := filepath.Dir(r.cfg.OutputFile)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(r.events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := os.WriteFile(r.cfg.OutputFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write events: %w", err)
	}
	r.log.Info(ctx, "events saved to file", logger.String("filename", r.cfg.OutputFile))
	return nil
}

func (r *Runner) displayFinalStats(ctx context.Context, sessionID string) {
	r.log.Info(ctx, "final statistics",
		logger.String("session", sessionID),
		logger.Int("commandsSent", r.stats.CommandsSent),
		logger.Int("commandsAccepted", r.stats.CommandsAccepted),
		logger.Int("commandsDuplicate", r.stats.CommandsDuplicate),
		logger.Int("commandsFailed", r.stats.CommandsFailed),
		logger.Int("signalsSent", r.stats.SignalsSent),
		logger.Int("eventsReceived", r.stats.EventsReceived),
		logger.Int("recordsRetrieved", r.stats.RecordsRetrieved),
		logger.Duration("duration", r.stats.Duration))
}

// Package pipeline fetches the selected calendars for a window and merges
// them into one event list.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/famboard/internal/assign"
	"github.com/dukerupert/famboard/internal/model"
)

// ErrSuperseded is returned by Run when a newer Run started before this
// one finished. Its result must be discarded.
var ErrSuperseded = errors.New("fetch superseded")

// DefaultConcurrency bounds the number of calendars fetched at once.
const DefaultConcurrency = 8

// Fetcher reads one calendar. provider.Router implements it, including the
// single token refresh on an authorization failure.
type Fetcher interface {
	FetchEvents(ctx context.Context, sel model.SelectedCalendar, timeMin, timeMax time.Time) ([]model.CalendarEvent, error)
}

// Household supplies members and stored manual assignments.
type Household interface {
	ListMembers() ([]model.Member, error)
	ManualAssignments() (map[model.EventKey][]model.Assignment, error)
}

type Result struct {
	Events []model.CalendarEvent
	// Fetched counts the distinct calendars requested.
	Fetched int
	// Failed lists the calendars whose fetch failed and contributed nothing.
	Failed     []model.SelectedCalendar
	Generation uint64
}

type Pipeline struct {
	fetcher     Fetcher
	household   Household
	logger      *slog.Logger
	concurrency int
	now         func() time.Time

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func New(fetcher Fetcher, household Household, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		fetcher:     fetcher,
		household:   household,
		logger:      logger,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
}

// Dedup drops selections that repeat an (account, calendar) pair, keeping
// the first occurrence and the input order.
func Dedup(sels []model.SelectedCalendar) []model.SelectedCalendar {
	seen := make(map[string]bool, len(sels))
	out := make([]model.SelectedCalendar, 0, len(sels))
	for _, s := range sels {
		k := s.FetchKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

// Run starts a new fetch generation, cancelling any generation still in
// flight, and returns the merged events for [timeMin, timeMax).
func (p *Pipeline) Run(ctx context.Context, sels []model.SelectedCalendar, timeMin, timeMax time.Time) (Result, error) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.gen == gen {
			p.cancel = nil
		}
		p.mu.Unlock()
		cancel()
	}()

	res := p.Fetch(ctx, sels, timeMin, timeMax)
	res.Generation = gen

	p.mu.Lock()
	current := p.gen == gen
	p.mu.Unlock()
	if !current {
		return Result{Generation: gen}, ErrSuperseded
	}
	if err := ctx.Err(); err != nil {
		return Result{Generation: gen}, err
	}
	return res, nil
}

// Fetch fans out one request per distinct calendar, waits for all of them
// and merges in selection order. A failed calendar contributes nothing and
// is logged; it never fails the merge.
func (p *Pipeline) Fetch(ctx context.Context, sels []model.SelectedCalendar, timeMin, timeMax time.Time) Result {
	unique := Dedup(sels)
	results := make([][]model.CalendarEvent, len(unique))
	failed := make([]bool, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, sel := range unique {
		g.Go(func() error {
			events, err := p.fetcher.FetchEvents(gctx, sel, timeMin, timeMax)
			if err != nil {
				failed[i] = true
				if gctx.Err() == nil {
					p.logger.Warn("calendar fetch failed",
						"calendar_id", sel.CalendarID,
						"account_id", sel.AccountID,
						"error", err,
					)
				}
				return nil
			}
			results[i] = events
			return nil
		})
	}
	g.Wait()

	res := Result{Fetched: len(unique)}
	for i, sel := range unique {
		if failed[i] {
			res.Failed = append(res.Failed, sel)
			continue
		}
		for _, ev := range results[i] {
			ev.CalendarID = sel.CalendarID
			ev.AccountID = sel.AccountID
			res.Events = append(res.Events, ev)
		}
	}
	res.Events = p.assign(res.Events)
	return res
}

func (p *Pipeline) assign(events []model.CalendarEvent) []model.CalendarEvent {
	if p.household == nil || len(events) == 0 {
		return events
	}
	members, err := p.household.ListMembers()
	if err != nil {
		p.logger.Warn("list members for assignment", "error", err)
		return events
	}
	manual, err := p.household.ManualAssignments()
	if err != nil {
		p.logger.Warn("load manual assignments", "error", err)
		manual = nil
	}
	return assign.Apply(events, members, manual, p.now())
}

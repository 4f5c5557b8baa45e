package cascade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-cascade/pkg/activity"
)

// Controller keeps the course search fields consistent as they are edited.
// It owns the field store, dispatches resolver calls for dependents and
// discards responses that have been superseded.
//
// All store mutations are serialised behind one mutex. Resolver and search
// calls run on their own goroutines and apply their results under the same
// lock, so a Controller is safe for concurrent use.
type Controller struct {
	cfg      config
	resolver Resolver
	searcher Searcher
	rules    *preconditions
	emitter  *activity.Emitter
	logger   Logger
	session  string

	mu        sync.Mutex
	store     *fieldStore
	results   ResultsView
	searchSeq uint64
	searchErr error

	wg sync.WaitGroup
}

type request struct {
	field FieldName
	scope Scope
	level Level
}

// New builds a controller over resolver and searcher. Schedule and delivery
// method are ready immediately; call Init to load the institution list.
func New(resolver Resolver, searcher Searcher, opts ...Option) (*Controller, error) {
	if resolver == nil {
		return nil, ErrResolverRequired
	}
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	cfg := applyOptions(opts)
	if err := errors.Join(cfg.errs...); err != nil {
		return nil, err
	}
	if err := cfg.graph.Validate(); err != nil {
		return nil, fmt.Errorf("cascade: dependency graph: %w", err)
	}
	rules, err := newPreconditions(cfg)
	if err != nil {
		return nil, err
	}
	session := cfg.sessionID
	if session == "" {
		session = uuid.NewString()
	}
	return &Controller{
		cfg:      cfg,
		resolver: resolver,
		searcher: searcher,
		rules:    rules,
		emitter:  activity.NewEmitter(cfg.activityHooks, cfg.activityConfig),
		logger:   cfg.loggerOrNoop(),
		session:  session,
		store:    newFieldStore(cfg),
	}, nil
}

// Session returns the identifier reported on logs and activity events.
func (c *Controller) Session() string {
	return c.session
}

// Graph returns the dependency graph the controller cascades along.
func (c *Controller) Graph() DependencyGraph {
	return c.cfg.graph
}

// Init resolves the institution options.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatchLocked(ctx, request{
		field: FieldInstitution,
		scope: NewScope(FieldInstitution, nil),
		level: LevelRoot,
	})
}

// OnInstitutionChange selects an institution. Every dependent is reset to
// its placeholder and any response still in flight for it is discarded.
// A non-empty value then resolves the dependents scoped by the institution.
func (c *Controller) OnInstitutionChange(ctx context.Context, value string) error {
	c.mu.Lock()
	events, err := c.changeInstitutionLocked(ctx, value)
	c.mu.Unlock()
	c.emit(ctx, events)
	return err
}

func (c *Controller) changeInstitutionLocked(ctx context.Context, value string) ([]activity.Event, error) {
	current := c.store.get(FieldInstitution)
	if value != "" && !current.Has(value) {
		return nil, fmt.Errorf("%w: %s=%q", ErrUnknownOption, FieldInstitution, value)
	}
	c.selectLocked(FieldInstitution, value)
	c.store.forgetBaselines()

	for _, dep := range c.cfg.graph.Transitive(FieldInstitution) {
		seq := c.store.issue(dep)
		c.store.placeholder(dep)
		c.store.trace(dep, TraceEntry{Seq: seq, Action: TraceReset})
	}

	events := []activity.Event{c.fieldChangedEvent(FieldInstitution, value, current.Selected)}
	if value == "" {
		return events, nil
	}

	upstream := map[FieldName]string{FieldInstitution: value}
	var errs []error
	for _, dep := range c.cfg.graph.Dependents(FieldInstitution) {
		err := c.dispatchLocked(ctx, request{
			field: dep,
			scope: NewScope(dep, upstream),
			level: LevelInstitution,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return events, errors.Join(errs...)
}

// OnCourseCodeChange selects a course code. A non-empty value resolves the
// course title and terms for the institution and code. Clearing it clears
// the title selection and resets the term to its prompt; both fields get back
// the institution-level option lists fetched earlier.
func (c *Controller) OnCourseCodeChange(ctx context.Context, value string) error {
	c.mu.Lock()
	events, err := c.changeCourseCodeLocked(ctx, value)
	c.mu.Unlock()
	c.emit(ctx, events)
	return err
}

func (c *Controller) changeCourseCodeLocked(ctx context.Context, value string) ([]activity.Event, error) {
	current := c.store.get(FieldCourseCode)
	if value != "" && !current.Has(value) {
		return nil, fmt.Errorf("%w: %s=%q", ErrUnknownOption, FieldCourseCode, value)
	}
	institution := c.store.get(FieldInstitution).Selected
	c.selectLocked(FieldCourseCode, value)
	events := []activity.Event{c.fieldChangedEvent(FieldCourseCode, value, current.Selected)}

	var errs []error
	for _, dep := range c.cfg.graph.Transitive(FieldCourseCode) {
		if value == "" {
			if err := c.restoreLocked(ctx, dep, institution); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		c.store.mutate(dep, func(f *Field) {
			f.Selected = ""
		})
		err := c.dispatchLocked(ctx, request{
			field: dep,
			scope: NewScope(dep, map[FieldName]string{
				FieldInstitution: institution,
				FieldCourseCode:  value,
			}),
			level: LevelCourseCode,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return events, errors.Join(errs...)
}

// restoreLocked puts the institution-level option list back on a field whose
// course code was cleared. Without a cached list the field is refetched.
func (c *Controller) restoreLocked(ctx context.Context, field FieldName, institution string) error {
	seq := c.store.issue(field)
	if institution == "" {
		c.store.placeholder(field)
		c.store.trace(field, TraceEntry{Seq: seq, Action: TraceReset})
		return nil
	}
	if entries, ok := c.store.baselineFor(field, institution); ok {
		c.store.mutate(field, func(f *Field) {
			f.Selected = ""
			f.Options = withPrompt(field, entries)
			f.Status = StatusReady
			f.Err = nil
		})
		c.store.trace(field, TraceEntry{Seq: seq, Action: TraceRestore, Count: len(entries)})
		return nil
	}
	c.store.mutate(field, func(f *Field) {
		f.Selected = ""
		f.Options = withPrompt(field, nil)
		f.Status = StatusIdle
		f.Err = nil
	})
	c.store.trace(field, TraceEntry{Seq: seq, Action: TraceReset})
	return c.dispatchLocked(ctx, request{
		field: field,
		scope: NewScope(field, map[FieldName]string{FieldInstitution: institution}),
		level: LevelInstitution,
	})
}

// Change is the generic edit entry point. Institution and course code edits
// cascade; other fields only accept values among their current options.
func (c *Controller) Change(ctx context.Context, field FieldName, value string) error {
	switch field {
	case FieldInstitution:
		return c.OnInstitutionChange(ctx, value)
	case FieldCourseCode:
		return c.OnCourseCodeChange(ctx, value)
	}
	if !field.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownField, int(field))
	}

	c.mu.Lock()
	current := c.store.get(field)
	if value != "" && !current.Has(value) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s=%q", ErrUnknownOption, field, value)
	}
	c.selectLocked(field, value)
	event := c.fieldChangedEvent(field, value, current.Selected)
	c.mu.Unlock()

	c.emit(ctx, []activity.Event{event})
	return nil
}

// Retry re-resolves a field using the current upstream selections, typically
// after it ended in StatusError.
func (c *Controller) Retry(ctx context.Context, field FieldName) error {
	if !field.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownField, int(field))
	}
	if field.Static() {
		return fmt.Errorf("%w: %s", ErrNotCascading, field)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	institution := c.store.get(FieldInstitution).Selected
	code := c.store.get(FieldCourseCode).Selected

	req := request{field: field}
	switch {
	case field == FieldInstitution:
		req.scope = NewScope(field, nil)
		req.level = LevelRoot
	case code != "" && c.cfg.graph.DependsOn(field, FieldCourseCode):
		req.scope = NewScope(field, map[FieldName]string{FieldInstitution: institution, FieldCourseCode: code})
		req.level = LevelCourseCode
	default:
		req.scope = NewScope(field, map[FieldName]string{FieldInstitution: institution})
		req.level = LevelInstitution
	}
	return c.dispatchLocked(ctx, req)
}

// Submit builds the search query from the current selections and runs the
// search in the background. The field store is not modified. The returned
// query is the one sent.
func (c *Controller) Submit(ctx context.Context) SearchQuery {
	c.mu.Lock()
	query := BuildQuery(c.store.snapshot())
	c.searchSeq++
	seq := c.searchSeq
	c.results.Pending = true
	c.results.Notice = ""
	c.notifyResultsLocked()
	c.log(CascadeLogEvent{Kind: LogKindSearch, Seq: seq, Outcome: OutcomeDispatched})
	c.wg.Add(1)
	c.mu.Unlock()

	c.emit(ctx, []activity.Event{activity.BuildSearchSubmittedEvent(c.searchEvent(query, seq, 0, nil))})
	go c.search(ctx, query, seq)
	return query
}

func (c *Controller) search(ctx context.Context, query SearchQuery, seq uint64) {
	defer c.wg.Done()
	start := time.Now()
	results, err := c.searcher.Search(ctx, query)
	elapsed := time.Since(start)

	c.mu.Lock()
	if seq != c.searchSeq {
		c.mu.Unlock()
		c.log(CascadeLogEvent{Kind: LogKindSearch, Seq: seq, Outcome: OutcomeStale, Duration: elapsed})
		return
	}
	var event activity.Event
	if err != nil {
		searchErr := &SearchError{Query: query, Seq: seq, Err: err}
		c.searchErr = searchErr
		c.results.Pending = false
		c.results.Notice = fmt.Sprintf("Search failed: %v", err)
		c.log(CascadeLogEvent{Kind: LogKindSearch, Seq: seq, Outcome: OutcomeFailed, Duration: elapsed, Err: searchErr})
		event = activity.BuildSearchFailedEvent(c.searchEvent(query, seq, 0, err))
	} else {
		c.searchErr = nil
		c.results = ResultsView{
			Rows:     Render(results),
			Results:  append([]CourseResult(nil), results...),
			Query:    query,
			Count:    len(results),
			Searched: true,
		}
		c.log(CascadeLogEvent{Kind: LogKindSearch, Seq: seq, Outcome: OutcomeApplied, Count: len(results), Duration: elapsed})
		event = activity.BuildSearchCompletedEvent(c.searchEvent(query, seq, len(results), nil))
	}
	c.notifyResultsLocked()
	c.mu.Unlock()

	c.emit(ctx, []activity.Event{event})
}

// Wait blocks until every resolution and search dispatched so far has
// completed. It must not race with calls that dispatch new work.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Snapshot returns a copy of every field.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.snapshot()
}

// Field returns a copy of one field.
func (c *Controller) Field(name FieldName) (Field, error) {
	if !name.Valid() {
		return Field{}, fmt.Errorf("%w: %d", ErrUnknownField, int(name))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.get(name), nil
}

// Results returns the current results view.
func (c *Controller) Results() ResultsView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results.clone()
}

// SearchErr returns the error of the latest search, or nil if it succeeded
// or none has completed.
func (c *Controller) SearchErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchErr
}

// Query returns the query Submit would send right now.
func (c *Controller) Query() SearchQuery {
	return BuildQuery(c.Snapshot())
}

// Trace returns the resolution history of a field.
func (c *Controller) Trace(name FieldName) Trace {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.traceOf(name)
}

// Subscribe registers a listener for field and results updates and returns
// a function that removes it.
func (c *Controller) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	c.mu.Lock()
	cancel := c.store.subscribe(listener)
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			cancel()
			c.mu.Unlock()
		})
	}
}

func (c *Controller) selectLocked(field FieldName, value string) {
	c.store.mutate(field, func(f *Field) {
		f.Selected = value
	})
	c.store.trace(field, TraceEntry{Seq: c.store.get(field).Seq, Action: TraceSelect, Value: value})
	c.log(CascadeLogEvent{Kind: LogKindChange, Field: field, Value: value, Outcome: OutcomeApplied})
}

// dispatchLocked checks the scope's preconditions, issues a new sequence
// number and starts the resolver call. A rule that is not met skips the call
// and leaves the field Idle on its prompt; only a rule that cannot be
// evaluated is reported to the caller.
func (c *Controller) dispatchLocked(ctx context.Context, req request) error {
	if err := c.rules.check(req.scope, req.level); err != nil {
		c.skipLocked(req, err)
		var evalErr *EvaluationError
		if errors.As(err, &evalErr) {
			return err
		}
		return nil
	}

	seq := c.store.issue(req.field)
	c.store.mutate(req.field, func(f *Field) {
		f.Status = StatusLoading
		f.Err = nil
	})
	c.store.trace(req.field, TraceEntry{
		Seq:    seq,
		Action: TraceDispatch,
		Level:  req.level.String(),
		Scope:  req.scope.Key(),
	})
	c.log(CascadeLogEvent{Kind: LogKindResolve, Field: req.field, Level: req.level, Seq: seq, Outcome: OutcomeDispatched})

	c.wg.Add(1)
	go c.resolve(ctx, req, seq)
	return nil
}

// skipLocked records a resolution the preconditions did not allow. The
// sequence is bumped so responses from the field's previous scope are
// discarded.
func (c *Controller) skipLocked(req request, err error) {
	seq := c.store.issue(req.field)
	c.store.mutate(req.field, func(f *Field) {
		f.Selected = ""
		f.Options = withPrompt(req.field, nil)
		f.Status = StatusIdle
		f.Err = nil
	})
	c.store.trace(req.field, TraceEntry{
		Seq:     seq,
		Action:  TracePrecheck,
		Level:   req.level.String(),
		Scope:   req.scope.Key(),
		Outcome: OutcomeSkipped,
		Error:   err.Error(),
	})
	c.log(CascadeLogEvent{Kind: LogKindResolve, Field: req.field, Level: req.level, Seq: seq, Outcome: OutcomeSkipped, Err: err})
}

func (c *Controller) resolve(ctx context.Context, req request, seq uint64) {
	defer c.wg.Done()
	start := time.Now()
	entries, err := c.resolver.Resolve(ctx, req.scope.clone())
	events := c.complete(req, seq, entries, err, time.Since(start))
	c.emit(ctx, events)
}

// complete applies a resolver response if it is still authoritative.
func (c *Controller) complete(req request, seq uint64, entries []OptionEntry, err error, elapsed time.Duration) []activity.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries = selectable(entries)
	if err == nil && req.level == LevelInstitution && c.remembers(req.field) {
		if c.store.get(FieldInstitution).Selected == req.scope.InstitutionID() {
			c.store.remember(req.field, req.scope.InstitutionID(), entries)
		}
	}

	entry := TraceEntry{
		Seq:    seq,
		Action: TraceComplete,
		Level:  req.level.String(),
		Scope:  req.scope.Key(),
		Count:  len(entries),
	}
	logEvent := CascadeLogEvent{
		Kind:     LogKindResolve,
		Field:    req.field,
		Level:    req.level,
		Seq:      seq,
		Count:    len(entries),
		Duration: elapsed,
	}

	if !c.store.current(req.field, seq) {
		entry.Outcome = OutcomeStale
		logEvent.Outcome = OutcomeStale
		logEvent.Err = err
		c.store.trace(req.field, entry)
		c.log(logEvent)
		return nil
	}

	if err != nil {
		resErr := &ResolutionError{Field: req.field, Seq: seq, Scope: req.scope, Err: err}
		c.store.mutate(req.field, func(f *Field) {
			f.Selected = ""
			f.Options = []OptionEntry{SentinelEntry(failureLabel(req.field))}
			f.Status = StatusError
			f.Err = resErr
		})
		entry.Outcome = OutcomeFailed
		entry.Error = err.Error()
		logEvent.Outcome = OutcomeFailed
		logEvent.Err = resErr
		c.store.trace(req.field, entry)
		c.log(logEvent)
		return []activity.Event{activity.BuildOptionsFailedEvent(c.fieldEvent(req, seq, "", 0, resErr))}
	}

	var state Field
	switch {
	case req.level == LevelCourseCode && req.field == FieldCourseTitle:
		state = c.applyTitleLocked(entries)
	case req.level == LevelCourseCode && req.field == FieldTerm:
		state = c.applyTermsLocked(entries)
	default:
		state = c.applyListLocked(req.field, entries)
	}

	entry.Outcome = OutcomeApplied
	entry.Value = state.Selected
	logEvent.Outcome = OutcomeApplied
	logEvent.Value = state.Selected
	c.store.trace(req.field, entry)
	c.log(logEvent)
	return []activity.Event{activity.BuildOptionsResolvedEvent(c.fieldEvent(req, seq, state.Selected, len(entries), nil))}
}

// remembers reports whether the field's institution-level list is cached for
// restoring after the course code is cleared.
func (c *Controller) remembers(field FieldName) bool {
	return c.cfg.graph.DependsOn(field, FieldCourseCode)
}

func (c *Controller) applyListLocked(field FieldName, entries []OptionEntry) Field {
	return c.store.mutate(field, func(f *Field) {
		f.Options = withPrompt(field, entries)
		f.Status = StatusReady
		f.Err = nil
		if f.Selected != "" && !f.Has(f.Selected) {
			f.Selected = ""
		}
	})
}

// applyTitleLocked selects the singular title of the chosen course, adding
// it to the options when the institution-level list lacks it.
func (c *Controller) applyTitleLocked(entries []OptionEntry) Field {
	title := ""
	if len(entries) > 0 {
		title = entries[0].Value
	}
	institution := c.store.get(FieldInstitution).Selected
	return c.store.mutate(FieldCourseTitle, func(f *Field) {
		base, ok := c.store.baselineFor(FieldCourseTitle, institution)
		if !ok {
			base = f.Choices()
		}
		options := withPrompt(FieldCourseTitle, base)
		if title != "" && !(Field{Options: options}).Has(title) {
			options = append(options, entries[0])
		}
		f.Options = options
		f.Selected = title
		f.Status = StatusReady
		f.Err = nil
	})
}

// applyTermsLocked applies the term policy: one term is selected, none shows
// the "No terms available" placeholder, several are left for the user.
func (c *Controller) applyTermsLocked(entries []OptionEntry) Field {
	return c.store.mutate(FieldTerm, func(f *Field) {
		f.Status = StatusReady
		f.Err = nil
		switch len(entries) {
		case 0:
			f.Options = []OptionEntry{SentinelEntry(placeholderNoTerms)}
			f.Selected = ""
		case 1:
			f.Options = withPrompt(FieldTerm, entries)
			f.Selected = entries[0].Value
		default:
			f.Options = withPrompt(FieldTerm, entries)
			f.Selected = ""
		}
	})
}

func (c *Controller) notifyResultsLocked() {
	view := c.results.clone()
	c.store.notify(Update{Field: FieldUnknown, Results: &view})
}

func (c *Controller) log(event CascadeLogEvent) {
	event.Session = c.session
	c.logger.LogCascade(event)
}

func (c *Controller) emit(ctx context.Context, events []activity.Event) {
	if len(events) == 0 || !c.emitter.Enabled() {
		return
	}
	if err := c.emitter.EmitAll(ctx, events...); err != nil {
		c.log(CascadeLogEvent{Kind: LogKindActivity, Outcome: OutcomeFailed, Err: err})
	}
}

func (c *Controller) fieldChangedEvent(field FieldName, value, old string) activity.Event {
	return activity.BuildFieldChangedEvent(activity.FieldEventInput{
		SessionID:  c.session,
		Field:      field.String(),
		Value:      value,
		OldValue:   old,
		OccurredAt: c.cfg.now(),
	})
}

func (c *Controller) fieldEvent(req request, seq uint64, value string, count int, err error) activity.FieldEventInput {
	return activity.FieldEventInput{
		SessionID:  c.session,
		Field:      req.field.String(),
		Value:      value,
		Level:      req.level.String(),
		Seq:        seq,
		Count:      count,
		Err:        err,
		OccurredAt: c.cfg.now(),
	}
}

func (c *Controller) searchEvent(query SearchQuery, seq uint64, count int, err error) activity.SearchEventInput {
	return activity.SearchEventInput{
		SessionID:  c.session,
		Query:      query.Map(),
		Seq:        seq,
		Count:      count,
		Err:        err,
		OccurredAt: c.cfg.now(),
	}
}

// selectable drops sentinels and empty values from resolver output.
func selectable(entries []OptionEntry) []OptionEntry {
	out := make([]OptionEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Sentinel || entry.Value == "" {
			continue
		}
		if entry.Label == "" {
			entry.Label = entry.Value
		}
		out = append(out, entry)
	}
	return out
}

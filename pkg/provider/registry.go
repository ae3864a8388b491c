// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider implements the category registry for pluggable data
// sources.
//
// Each category (layers, styles) owns a typed Registry. Backend packages
// export a Factory that the process entry point registers explicitly; the
// registry matches a configuration's hint against the registered factories,
// builds the instance and publishes it in an immutable snapshot that request
// workers read without locking.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leseb/ogc-gw/pkg/observability/logging"
)

const (
	defaultCleanupTimeout  = 10 * time.Second
	defaultLoadConcurrency = 4
)

// Declaration is a provider declared ahead of time, in a config file or a
// persisted record.
type Declaration struct {
	ID     string      `yaml:"id" json:"id"`
	Hint   Hint        `yaml:"hint,omitempty" json:"hint,omitempty"`
	Config *ConfigTree `yaml:"config" json:"config"`
}

// Info is the administrative view of a live instance.
type Info struct {
	Category  string      `json:"category"`
	ID        string      `json:"id"`
	Kind      string      `json:"kind"`
	Hint      Hint        `json:"hint"`
	Config    *ConfigTree `json:"config"`
	Keys      []string    `json:"keys"`
	CreatedAt time.Time   `json:"created_at"`
}

// Failure records the last failed construction of an identifier. It is
// cleared when the identifier is built successfully.
type Failure struct {
	Category string    `json:"category"`
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Hint     Hint      `json:"hint"`
	Cause    string    `json:"cause"`
	At       time.Time `json:"at"`
	Err      error     `json:"-"`
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	logger          *logging.Logger
	metrics         *Metrics
	buildTimeout    time.Duration
	cleanupTimeout  time.Duration
	loadConcurrency int
	onCleanup       func(*CleanupFailedError)
}

// WithLogger sets the registry logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records registry operations into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithBuildTimeout sets the construction deadline used when a
// configuration does not carry its own.
func WithBuildTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.buildTimeout = d
		}
	}
}

// WithCleanupTimeout bounds each Dispose and RemoveAll call.
func WithCleanupTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cleanupTimeout = d
		}
	}
}

// WithLoadConcurrency bounds the number of parallel builds in LoadAll.
func WithLoadConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.loadConcurrency = n
		}
	}
}

// WithCleanupObserver receives every cleanup failure. The callback runs
// on the goroutine of the operation that failed and must not block.
func WithCleanupObserver(fn func(*CleanupFailedError)) Option {
	return func(o *options) { o.onCleanup = fn }
}

type entry[P Instance] struct {
	inst    P
	hint    Hint
	created time.Time
}

type snapshot[P Instance] struct {
	ids  []string
	byID map[string]*entry[P]
}

// Registry holds the live instances of one category.
type Registry[P Instance] struct {
	category string
	opts     options
	log      *logging.Logger

	// factories is written during initialization only.
	factories []Factory[P]
	byKind    map[string]Factory[P]

	index     atomic.Pointer[snapshot[P]]
	publishMu sync.Mutex
	locks     keyedMutex

	// gate is held shared by mutations and exclusively by DisposeAll.
	gate   sync.RWMutex
	closed bool

	failMu   sync.Mutex
	failures map[string]Failure
}

// NewRegistry creates an empty registry for the named category.
func NewRegistry[P Instance](category string, opts ...Option) *Registry[P] {
	o := options{
		buildTimeout:    DefaultBuildTimeout,
		cleanupTimeout:  defaultCleanupTimeout,
		loadConcurrency: defaultLoadConcurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	r := &Registry[P]{
		category: category,
		opts:     o,
		log:      o.logger.With("category", category),
		byKind:   make(map[string]Factory[P]),
		failures: make(map[string]Failure),
	}
	r.index.Store(&snapshot[P]{byID: map[string]*entry[P]{}})
	return r
}

// Category returns the category name.
func (r *Registry[P]) Category() string { return r.category }

// RegisterFactory adds a factory. It must be called before the registry
// is shared between goroutines.
func (r *Registry[P]) RegisterFactory(f Factory[P]) error {
	kind := f.Kind()
	if kind == "" {
		return fmt.Errorf("%s: factory has no kind", r.category)
	}
	if _, exists := r.byKind[kind]; exists {
		return fmt.Errorf("%s backend %q: %w", r.category, kind, ErrDuplicateKind)
	}
	r.factories = append(r.factories, f)
	r.byKind[kind] = f
	return nil
}

// MustRegisterFactory is like RegisterFactory but panics on error.
func (r *Registry[P]) MustRegisterFactory(f Factory[P]) {
	if err := r.RegisterFactory(f); err != nil {
		panic(fmt.Sprintf("provider: %v", err))
	}
}

// Factories lists the registered factories in registration order.
func (r *Registry[P]) Factories() []FactoryInfo {
	out := make([]FactoryInfo, 0, len(r.factories))
	for _, f := range r.factories {
		out = append(out, FactoryInfo{Kind: f.Kind(), Descriptor: f.ParameterSchema()})
	}
	return out
}

// Get returns the live instance for id.
func (r *Registry[P]) Get(id string) (P, bool) {
	e, ok := r.index.Load().byID[id]
	if !ok {
		var zero P
		return zero, false
	}
	return e.inst, true
}

// List returns the live instances sorted by id.
func (r *Registry[P]) List() []P {
	snap := r.index.Load()
	out := make([]P, 0, len(snap.ids))
	for _, id := range snap.ids {
		out = append(out, snap.byID[id].inst)
	}
	return out
}

// Len returns the number of live instances.
func (r *Registry[P]) Len() int {
	return len(r.index.Load().ids)
}

// Lookup resolves a data key of a live instance.
func (r *Registry[P]) Lookup(id, key string) (Handle, bool) {
	e, ok := r.index.Load().byID[id]
	if !ok {
		return Handle{}, false
	}
	return e.inst.Get(key)
}

// Infos describes every live instance, sorted by id.
func (r *Registry[P]) Infos() []Info {
	snap := r.index.Load()
	out := make([]Info, 0, len(snap.ids))
	for _, id := range snap.ids {
		out = append(out, r.info(snap.byID[id]))
	}
	return out
}

// Describe returns the administrative view of one instance.
func (r *Registry[P]) Describe(id string) (Info, bool) {
	e, ok := r.index.Load().byID[id]
	if !ok {
		return Info{}, false
	}
	return r.info(e), true
}

func (r *Registry[P]) info(e *entry[P]) Info {
	return Info{
		Category:  r.category,
		ID:        e.inst.ID(),
		Kind:      e.inst.Kind(),
		Hint:      e.hint,
		Config:    e.inst.Config(),
		Keys:      e.inst.Keys(),
		CreatedAt: e.created,
	}
}

// Failures lists the recorded construction failures sorted by id.
func (r *Registry[P]) Failures() []Failure {
	r.failMu.Lock()
	defer r.failMu.Unlock()
	out := make([]Failure, 0, len(r.failures))
	for _, f := range r.failures {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ping probes the backing store of id when the instance supports it.
func (r *Registry[P]) Ping(ctx context.Context, id string) error {
	inst, ok := r.Get(id)
	if !ok {
		return notFound(r.category, id)
	}
	if p, ok := any(inst).(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Create builds and publishes a new instance. An empty hint falls back to
// the configuration's choice group name.
func (r *Registry[P]) Create(ctx context.Context, id string, hint Hint, cfg *ConfigTree) (P, error) {
	var zero P
	if err := checkID(id); err != nil {
		return zero, err
	}
	done, err := r.begin(id)
	if err != nil {
		return zero, err
	}
	defer done()

	inst, err := r.create(ctx, id, hint, cfg)
	r.opts.metrics.op(r.category, "create", err)
	return inst, err
}

func (r *Registry[P]) create(ctx context.Context, id string, hint Hint, cfg *ConfigTree) (P, error) {
	var zero P
	if _, exists := r.index.Load().byID[id]; exists {
		return zero, fmt.Errorf("%s provider %q: %w", r.category, id, ErrDuplicateID)
	}
	f, hint, err := r.prepare(hint, cfg)
	if err != nil {
		return zero, err
	}
	inst, err := r.construct(ctx, f, id, hint, cfg)
	if err != nil {
		return zero, err
	}
	r.swap(func(m map[string]*entry[P]) {
		m[id] = &entry[P]{inst: inst, hint: hint, created: time.Now().UTC()}
	})
	r.log.Info("provider created", "id", id, "kind", inst.Kind(), "keys", len(inst.Keys()))
	return inst, nil
}

// Update rebuilds id from a new configuration and swaps it in. On failure
// the previous instance stays live.
func (r *Registry[P]) Update(ctx context.Context, id string, hint Hint, cfg *ConfigTree) (P, error) {
	var zero P
	done, err := r.begin(id)
	if err != nil {
		return zero, err
	}
	defer done()

	inst, err := r.update(ctx, id, hint, cfg)
	r.opts.metrics.op(r.category, "update", err)
	return inst, err
}

func (r *Registry[P]) update(ctx context.Context, id string, hint Hint, cfg *ConfigTree) (P, error) {
	var zero P
	old, ok := r.index.Load().byID[id]
	if !ok {
		return zero, notFound(r.category, id)
	}
	f, hint, err := r.prepare(hint, cfg)
	if err != nil {
		return zero, err
	}
	inst, err := r.construct(ctx, f, id, hint, cfg)
	if err != nil {
		return zero, err
	}
	r.replace(ctx, id, old, inst, hint)
	r.log.Info("provider updated", "id", id, "kind", inst.Kind())
	return inst, nil
}

// Restart rebuilds id from its retained configuration. The new instance
// is built before the old one is disposed, so a failed rebuild leaves the
// running instance untouched.
func (r *Registry[P]) Restart(ctx context.Context, id string) error {
	done, err := r.begin(id)
	if err != nil {
		return err
	}
	defer done()

	err = r.restart(ctx, id)
	r.opts.metrics.op(r.category, "restart", err)
	return err
}

func (r *Registry[P]) restart(ctx context.Context, id string) error {
	old, ok := r.index.Load().byID[id]
	if !ok {
		return notFound(r.category, id)
	}
	kind := old.inst.Kind()
	f, ok := r.byKind[kind]
	if !ok {
		return &ConstructionFailedError{
			Category: r.category,
			Kind:     kind,
			ID:       id,
			Cause:    fmt.Errorf("backend kind %q is not registered", kind),
		}
	}
	inst, err := r.construct(ctx, f, id, old.hint, old.inst.Config())
	if err != nil {
		return err
	}
	r.replace(ctx, id, old, inst, old.hint)
	r.log.Info("provider restarted", "id", id, "kind", kind)
	return nil
}

// Reload refreshes the key index of id in place.
func (r *Registry[P]) Reload(ctx context.Context, id string) error {
	done, err := r.begin(id)
	if err != nil {
		return err
	}
	defer done()

	err = r.reload(ctx, id)
	r.opts.metrics.op(r.category, "reload", err)
	return err
}

func (r *Registry[P]) reload(ctx context.Context, id string) error {
	e, ok := r.index.Load().byID[id]
	if !ok {
		return notFound(r.category, id)
	}
	if err := e.inst.Reload(ctx); err != nil {
		r.log.Warn("provider reload failed", "id", id, "error", err)
		return fmt.Errorf("%s provider %q: reload: %w", r.category, id, err)
	}
	r.log.Info("provider reloaded", "id", id, "keys", len(e.inst.Keys()))
	return nil
}

// Remove unpublishes id and disposes it. Dispose failures are reported
// to the cleanup observer and do not fail the call.
func (r *Registry[P]) Remove(ctx context.Context, id string) error {
	return r.remove(ctx, id, false)
}

// Purge is Remove preceded by RemoveAll, dropping data the instance owns.
func (r *Registry[P]) Purge(ctx context.Context, id string) error {
	return r.remove(ctx, id, true)
}

func (r *Registry[P]) remove(ctx context.Context, id string, purge bool) error {
	op := "remove"
	if purge {
		op = "purge"
	}
	done, err := r.begin(id)
	if err != nil {
		return err
	}
	defer done()

	e, ok := r.index.Load().byID[id]
	if !ok {
		err := notFound(r.category, id)
		r.opts.metrics.op(r.category, op, err)
		return err
	}
	r.swap(func(m map[string]*entry[P]) { delete(m, id) })
	r.failMu.Lock()
	delete(r.failures, id)
	r.failMu.Unlock()
	r.opts.metrics.op(r.category, op, nil)
	r.log.Info("provider removed", "id", id, "purge", purge)

	if purge {
		_ = r.cleanup(ctx, id, "remove_all", e.inst.RemoveAll)
	}
	_ = r.cleanup(ctx, id, "dispose", e.inst.Dispose)
	return nil
}

// LoadAll creates every declaration with bounded parallelism. A failing
// declaration never stops the others; their errors are joined.
func (r *Registry[P]) LoadAll(ctx context.Context, decls []Declaration) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(r.opts.loadConcurrency)
	for _, d := range decls {
		g.Go(func() error {
			if _, err := r.Create(ctx, d.ID, d.Hint, d.Config); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(errs) > 0 {
		r.log.Warn("some providers failed to load", "failed", len(errs), "declared", len(decls))
	}
	return errors.Join(errs...)
}

// DisposeAll waits for in-flight mutations, closes the registry and
// disposes every instance. Later mutations fail with ErrClosed.
func (r *Registry[P]) DisposeAll(ctx context.Context) error {
	r.gate.Lock()
	defer r.gate.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	snap := r.index.Load()
	r.swap(func(m map[string]*entry[P]) { clear(m) })

	var errs []error
	for _, id := range snap.ids {
		if err := r.cleanup(ctx, id, "dispose", snap.byID[id].inst.Dispose); err != nil {
			errs = append(errs, err)
		}
	}
	r.log.Info("registry closed", "disposed", len(snap.ids), "failed", len(errs))
	return errors.Join(errs...)
}

// begin enters the shared lifecycle gate and locks id.
func (r *Registry[P]) begin(id string) (func(), error) {
	r.gate.RLock()
	if r.closed {
		r.gate.RUnlock()
		return nil, fmt.Errorf("%s: %w", r.category, ErrClosed)
	}
	unlock := r.locks.lock(id)
	return func() {
		unlock()
		r.gate.RUnlock()
	}, nil
}

// prepare checks the tree and resolves the factory for hint.
func (r *Registry[P]) prepare(hint Hint, cfg *ConfigTree) (Factory[P], Hint, error) {
	if err := cfg.Check(); err != nil {
		return nil, "", &InvalidConfigError{Reason: err.Error()}
	}
	if hint == "" {
		hint = cfg.Hint()
	}
	f, err := r.resolve(hint)
	if err != nil {
		return nil, "", err
	}
	return f, hint, nil
}

// resolve scans every factory and requires exactly one match.
func (r *Registry[P]) resolve(hint Hint) (Factory[P], error) {
	var matched []Factory[P]
	for _, f := range r.factories {
		if f.Matches(hint) {
			matched = append(matched, f)
		}
	}
	switch len(matched) {
	case 0:
		return nil, &MatchError{Category: r.category, Hint: hint}
	case 1:
		return matched[0], nil
	default:
		kinds := make([]string, len(matched))
		for i, f := range matched {
			kinds[i] = f.Kind()
		}
		return nil, &MatchError{Category: r.category, Hint: hint, Kinds: kinds}
	}
}

// construct validates cfg and builds an instance. Every failure is
// recorded and returned as a *ConstructionFailedError.
func (r *Registry[P]) construct(ctx context.Context, f Factory[P], id string, hint Hint, cfg *ConfigTree) (P, error) {
	var zero P
	kind := f.Kind()
	if err := f.ParameterSchema().Validate(cfg.Choice.Params); err != nil {
		return zero, r.fail(id, kind, hint, err)
	}

	bctx, cancel := context.WithTimeout(ctx, cfg.BuildTimeout(r.opts.buildTimeout))
	defer cancel()

	start := time.Now()
	inst, err := f.Build(bctx, id, cfg.Clone())
	r.opts.metrics.observeBuild(r.category, kind, time.Since(start))
	if err != nil {
		return zero, r.fail(id, kind, hint, err)
	}
	if any(inst) == nil {
		return zero, r.fail(id, kind, hint, errors.New("factory returned no instance"))
	}
	if inst.ID() != id {
		_ = inst.Dispose(ctx)
		return zero, r.fail(id, kind, hint, fmt.Errorf("instance reports id %q", inst.ID()))
	}

	r.failMu.Lock()
	delete(r.failures, id)
	r.failMu.Unlock()
	return inst, nil
}

func (r *Registry[P]) fail(id, kind string, hint Hint, cause error) error {
	err := &ConstructionFailedError{Category: r.category, Kind: kind, ID: id, Cause: cause}
	r.log.Warn("provider construction failed", "id", id, "kind", kind, "error", cause)

	r.failMu.Lock()
	r.failures[id] = Failure{
		Category: r.category,
		ID:       id,
		Kind:     kind,
		Hint:     hint,
		Cause:    cause.Error(),
		At:       time.Now().UTC(),
		Err:      err,
	}
	r.failMu.Unlock()
	return err
}

// replace publishes inst under id and disposes the instance it replaced.
func (r *Registry[P]) replace(ctx context.Context, id string, old *entry[P], inst P, hint Hint) {
	r.swap(func(m map[string]*entry[P]) {
		m[id] = &entry[P]{inst: inst, hint: hint, created: time.Now().UTC()}
	})
	_ = r.cleanup(ctx, id, "dispose", old.inst.Dispose)
}

// swap publishes a modified copy of the index.
func (r *Registry[P]) swap(mutate func(map[string]*entry[P])) {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	cur := r.index.Load()
	next := make(map[string]*entry[P], len(cur.byID)+1)
	for id, e := range cur.byID {
		next[id] = e
	}
	mutate(next)

	ids := make([]string, 0, len(next))
	for id := range next {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	r.index.Store(&snapshot[P]{ids: ids, byID: next})
	r.opts.metrics.setInstances(r.category, len(ids))
}

// cleanup runs a release step of an unpublished instance and reports its
// failure through the advisory channel.
func (r *Registry[P]) cleanup(ctx context.Context, id, op string, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.cleanupTimeout)
	defer cancel()

	err := fn(cctx)
	if err == nil {
		return nil
	}
	cfe := &CleanupFailedError{Category: r.category, ID: id, Op: op, Cause: err}
	r.log.Warn("provider cleanup failed", "id", id, "op", op, "error", err)
	r.opts.metrics.cleanupFailed(r.category, op)
	if r.opts.onCleanup != nil {
		r.opts.onCleanup(cfe)
	}
	return cfe
}

func checkID(id string) error {
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, "/ \t\n") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

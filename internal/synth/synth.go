// Package synth drives the end-to-end synthesis of a generated source into
// a mounted unit: sanitize, transform, execute, resolve, mount, with the
// runtime guard tracking the outcome. A holder owns one logical request
// slot; rapid source updates supersede in-flight attempts, and a superseded
// attempt's result is discarded unconditionally, even a successful one.
package synth

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chartsynth/internal/bindings"
	"chartsynth/internal/diag"
	"chartsynth/internal/executor"
	"chartsynth/internal/guard"
	"chartsynth/internal/markup"
	"chartsynth/internal/resolve"
	"chartsynth/internal/source"
	"chartsynth/internal/transform"
	"chartsynth/internal/vdom"
)

// Config tunes a synthesizer.
type Config struct {
	// ExecTimeout bounds a single evaluation. Zero means the executor
	// default.
	ExecTimeout time.Duration
	// MaxSourceBytes rejects oversized generated sources before any work.
	// Zero means no limit.
	MaxSourceBytes int
}

// Subscriber receives every committed outcome for a slot. It is invoked
// with the holder lock released and must be safe for concurrent use.
type Subscriber func(guard.Outcome)

// Synthesizer owns the pipeline stages and the shared binding table. One
// synthesizer serves any number of holders.
type Synthesizer struct {
	table    *bindings.Table
	exec     *executor.Executor
	resolver *resolve.Resolver
	logger   *zap.Logger
	maxBytes int
}

// New builds a synthesizer over the given binding table.
func New(table *bindings.Table, cfg Config, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		table:    table,
		exec:     executor.New(executor.Config{Timeout: cfg.ExecTimeout}),
		resolver: resolve.New(table),
		logger:   logger,
		maxBytes: cfg.MaxSourceBytes,
	}
}

// NewHolder creates a request slot. The subscriber is the single,
// explicitly injected observer of outcome changes; it may be nil.
func (s *Synthesizer) NewHolder(subscriber Subscriber) *Holder {
	return &Holder{
		s:          s,
		guard:      guard.New(),
		subscriber: subscriber,
	}
}

// Holder is one logical request slot. The guard is mutated only by the
// currently valid attempt, gated by a generation check under the lock; that
// check is the sole synchronization discipline the pipeline needs.
type Holder struct {
	s          *Synthesizer
	subscriber Subscriber

	gen atomic.Uint64

	mu    sync.Mutex
	guard *guard.Guard
	src   source.Generated

	wg sync.WaitGroup
}

// Request starts a fresh synthesis for src, superseding any in-flight
// attempt for this slot. The generation and the retained source are
// assigned under one lock acquisition so they always describe the same
// request, even with concurrent callers.
func (h *Holder) Request(ctx context.Context, src source.Generated) {
	h.mu.Lock()
	gen := h.gen.Add(1)
	h.src = src
	h.guard.Reset()
	_ = h.guard.Begin()
	out := h.guard.Outcome()
	h.mu.Unlock()
	h.publish(out)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run(ctx, src, gen)
	}()
}

// Retry re-runs the full pipeline from the sanitizer onward using the same
// generated source. This is the user-invocable recovery action; nothing in
// the pipeline retries automatically.
func (h *Holder) Retry(ctx context.Context) {
	h.mu.Lock()
	src := h.src
	h.mu.Unlock()
	h.Request(ctx, src)
}

// Fail commits an externally produced diagnostic (for example an
// UnsupportedRequestError from the generation layer), superseding any
// in-flight attempt.
func (h *Holder) Fail(d *diag.Diagnostic) {
	h.mu.Lock()
	h.gen.Add(1)
	h.guard.Reset()
	_ = h.guard.Begin()
	_ = h.guard.FailSynthesis(d)
	out := h.guard.Outcome()
	h.mu.Unlock()
	h.publish(out)
}

// Outcome returns the current outcome for the slot.
func (h *Holder) Outcome() guard.Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.guard.Outcome()
}

// Wait blocks until every started attempt has finished (committed or been
// discarded). Intended for drivers and tests.
func (h *Holder) Wait() {
	h.wg.Wait()
}

func (h *Holder) publish(out guard.Outcome) {
	if h.subscriber != nil {
		h.subscriber(out)
	}
}

// stale reports whether a newer request superseded generation gen.
func (h *Holder) stale(gen uint64) bool {
	return h.gen.Load() != gen
}

// commit applies fn to the guard if and only if gen is still current. The
// check runs under the lock immediately before the state change, so a
// superseded attempt can never touch the outcome.
func (h *Holder) commit(gen uint64, fn func(*guard.Guard) error) bool {
	h.mu.Lock()
	if h.stale(gen) {
		h.mu.Unlock()
		return false
	}
	err := fn(h.guard)
	out := h.guard.Outcome()
	h.mu.Unlock()

	if err != nil {
		h.s.logger.Error("outcome transition rejected", zap.Error(err))
		return false
	}
	h.publish(out)
	return true
}

// run executes one synthesis attempt. Cooperative cancellation: the
// generation is checked after each suspendable stage and immediately before
// every commit.
func (h *Holder) run(ctx context.Context, src source.Generated, gen uint64) {
	started := time.Now()
	log := h.s.logger.With(
		zap.String("attempt", uuid.NewString()[:8]),
		zap.Uint64("generation", gen),
		zap.String("declared_name", src.DeclaredName),
	)
	log.Debug("synthesis started", zap.Int("source_bytes", len(src.Code)))

	if h.s.maxBytes > 0 && len(src.Code) > h.s.maxBytes {
		d := diag.New(diag.KindExecution, "generated source is %d bytes, limit is %d", len(src.Code), h.s.maxBytes)
		h.failSynthesis(gen, log, d)
		return
	}

	sanitized := source.Sanitize(src.Code)
	if h.stale(gen) {
		log.Debug("superseded after sanitize")
		return
	}

	mod, err := transform.Rewrite(sanitized)
	if err != nil {
		d := diag.FromError(diag.KindTransform, err)
		if perr, ok := err.(*markup.ParseError); ok {
			d = d.WithExcerpt(diag.ExcerptAround(sanitized, perr.Offset))
		}
		h.failSynthesis(gen, log, d)
		return
	}
	if h.stale(gen) {
		log.Debug("superseded after transform")
		return
	}

	res, err := h.s.exec.Run(ctx, mod, h.s.table)
	if err != nil {
		d := diag.FromError(diag.KindExecution, err).
			WithExcerpt(diag.ExcerptAround(mod.Body, evalErrorOffset(mod.Body, err)))
		h.failSynthesis(gen, log, d)
		return
	}
	if h.stale(gen) {
		log.Debug("superseded after execution")
		return
	}

	resolved, err := h.s.resolver.Resolve(res, src.DeclaredName)
	if err != nil {
		h.failSynthesis(gen, log, diag.FromError(diag.KindResolution, err))
		return
	}

	if !h.commit(gen, func(g *guard.Guard) error { return g.Succeed(resolved.Component) }) {
		log.Debug("superseded before ready commit")
		return
	}
	log.Info("synthesis ready",
		zap.String("strategy", resolved.Strategy),
		zap.Duration("elapsed", time.Since(started)))

	h.mount(gen, log, resolved.Component)
}

// mount is the render tier: expand the unit and commit either the mounted
// tree or a render failure. A superseded unit is never mounted.
func (h *Holder) mount(gen uint64, log *zap.Logger, unit any) {
	if h.stale(gen) {
		log.Debug("superseded before mount")
		return
	}
	tree, err := vdom.Mount(unit, nil)
	if err != nil {
		d := diag.FromError(diag.KindRender, err)
		if h.commit(gen, func(g *guard.Guard) error { return g.FailRender(d) }) {
			log.Warn("render failed", zap.String("kind", d.Kind.String()), zap.String("message", d.Message))
		}
		return
	}
	if h.commit(gen, func(g *guard.Guard) error { return g.Render(tree) }) {
		log.Debug("unit mounted")
	}
}

func (h *Holder) failSynthesis(gen uint64, log *zap.Logger, d *diag.Diagnostic) {
	if h.commit(gen, func(g *guard.Guard) error { return g.FailSynthesis(d) }) {
		log.Warn("synthesis failed",
			zap.String("kind", d.Kind.String()),
			zap.String("message", d.Message))
	}
}

// evalPos matches the "line:column:" prefix yaegi puts on evaluation
// errors.
var evalPos = regexp.MustCompile(`(\d+):(\d+):`)

// evalErrorOffset converts an evaluation error's line:column position into a
// byte offset within body, so the diagnostic excerpt points at the fault.
func evalErrorOffset(body string, err error) int {
	m := evalPos.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	line, _ := strconv.Atoi(m[1])
	col, _ := strconv.Atoi(m[2])
	offset := 0
	for line > 1 {
		next := strings.IndexByte(body[offset:], '\n')
		if next < 0 {
			return offset
		}
		offset += next + 1
		line--
	}
	if offset+col-1 < len(body) && col > 0 {
		offset += col - 1
	}
	return offset
}

package linkz

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// SpanHandler is called when a sampled span completes.
type SpanHandler func(span Span)

// Reporter receives finished, sampled spans. Report must not block the
// request path and must swallow its own failures.
type Reporter interface {
	Report(span Span)
}

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithClock injects the clock used for span timestamps.
func WithClock(clock clockz.Clock) Option {
	return func(t *Tracer) { t.clock = clock }
}

// WithLogger sets the logger used for tracing defects.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) { t.logger = logger }
}

// WithSampler sets the sampler for new traces.
func WithSampler(s Sampler) Option {
	return func(t *Tracer) { t.sampler = s }
}

// WithPropagation sets the header codec.
func WithPropagation(b B3) Option {
	return func(t *Tracer) { t.propagation = b }
}

// WithSpanNamer overrides how server spans are named.
func WithSpanNamer(n SpanNamer) Option {
	return func(t *Tracer) { t.namer = n }
}

// WithServerTagger adds a hook that tags server spans at send time.
func WithServerTagger(tagger ServerTagger) Option {
	return func(t *Tracer) { t.tagger = tagger }
}

// WithMetrics records tracer activity in m.
func WithMetrics(m *Metrics) Option {
	return func(t *Tracer) { t.metrics = m }
}

// WithServiceName sets the local endpoint attached to every span.
func WithServiceName(name string) Option {
	return func(t *Tracer) { t.local = &Endpoint{ServiceName: name} }
}

// WithTraceID128 chooses between 128-bit (default) and 64-bit trace ids.
func WithTraceID128(enabled bool) Option {
	return func(t *Tracer) { t.traceID128 = enabled }
}

// Tracer manages span lifecycle and reporting.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers     []handlerEntry
	panicHook    func(handlerID uint64, r interface{})
	workers      *workerPool
	traceIDPool  *IDPool
	spanIDPool   *IDPool
	clock        clockz.Clock
	logger       *zap.Logger
	sampler      Sampler
	decisions    *decisionTable
	namer        SpanNamer
	tagger       ServerTagger
	metrics      *Metrics
	local        *Endpoint
	propagation  B3
	handlersLock sync.RWMutex
	idPoolOnce   sync.Once
	nextID       atomic.Uint64
	droppedSpans atomic.Uint64
	fallbackSeq  atomic.Uint64
	traceID128   bool
}

// New creates a tracer. Without options it samples everything, uses the
// real clock and logs nothing.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		handlers:   make([]handlerEntry, 0),
		clock:      clockz.RealClock,
		logger:     zap.NewNop(),
		sampler:    AlwaysSample,
		decisions:  newDecisionTable(4096),
		namer:      DefaultSpanNamer,
		traceID128: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Propagation returns the header codec in use.
func (t *Tracer) Propagation() B3 {
	return t.propagation
}

// ensureIDPools initializes ID pools if not already created.
func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		poolSize := runtime.NumCPU() * 100
		t.traceIDPool = NewIDPool(poolSize, t.newRandomID)
		t.spanIDPool = NewIDPool(poolSize, t.newRandomID)
	})
}

func (t *Tracer) newRandomID() uint64 {
	id, err := randomID()
	if err != nil {
		// Fallback to a clock-derived id if crypto/rand fails.
		seq := t.fallbackSeq.Add(1)
		return uint64(t.clock.Now().UnixNano())<<8 ^ seq | 1
	}
	return id
}

func (t *Tracer) generateTraceID() TraceID {
	t.ensureIDPools()
	if t.traceID128 {
		return TraceID{High: t.traceIDPool.Get(), Low: t.traceIDPool.Get()}
	}
	return TraceID{Low: t.traceIDPool.Get()}
}

func (t *Tracer) generateSpanID() SpanID {
	t.ensureIDPools()
	return SpanID(t.spanIDPool.Get())
}

// Sample consults the sampler for a new trace. Consulting it again for the
// same trace id returns the first decision together with ErrSamplingMisuse.
func (t *Tracer) Sample(desc RequestDescriptor) (bool, error) {
	decision, repeated := t.decisions.decide(desc.TraceID, func() bool {
		return t.sampler.TrySample(desc)
	})
	if repeated {
		err := fmt.Errorf("%w: trace %s", ErrSamplingMisuse, desc.TraceID)
		t.defect(err)
		return decision, err
	}
	return decision, nil
}

// newRoot starts a trace, sampling it unless flags already decide.
func (t *Tracer) newRoot(desc RequestDescriptor, flags SamplingFlags) TraceContext {
	tc := TraceContext{
		TraceID: t.generateTraceID(),
		SpanID:  t.generateSpanID(),
		Sampled: flags.Sampled,
		Debug:   flags.Debug,
	}
	if tc.Debug {
		tc.Sampled = SampledTrue
	}
	if !tc.Sampled.IsSet() {
		desc.TraceID = tc.TraceID
		sampled, _ := t.Sample(desc)
		tc.Sampled = SampledOf(sampled)
	}
	return tc
}

// decideJoined fills in a decision for a context that arrived without one.
// The sampler is pure, so asking it directly keeps repeated joins of the
// same trace consistent.
func (t *Tracer) decideJoined(tc TraceContext, desc RequestDescriptor) TraceContext {
	if tc.Debug {
		tc.Sampled = SampledTrue
	}
	if !tc.Sampled.IsSet() {
		desc.TraceID = tc.TraceID
		tc.Sampled = SampledOf(t.sampler.TrySample(desc))
	}
	return tc
}

// nextContext returns a child of parent, or a new root when there is none.
func (t *Tracer) nextContext(parent TraceContext, hasParent bool, desc RequestDescriptor) TraceContext {
	if !hasParent {
		return t.newRoot(desc, SamplingFlags{})
	}
	return t.decideJoined(parent.Child(t.generateSpanID()), desc)
}

func (t *Tracer) newSpan(kind Kind, tc TraceContext, name string) *ActiveSpan {
	span := &Span{
		Context:       tc,
		Kind:          kind,
		Name:          name,
		StartTime:     t.clock.Now(),
		LocalEndpoint: t.local,
	}
	t.metrics.started(kind)
	return &ActiveSpan{span: span, tracer: t}
}

// StartSpan starts a local span as a child of the current context (or a new
// trace) and makes it current. Finish restores the previous context.
// Goroutines running beside the caller pass Fork(ctx), not ctx.
func (t *Tracer) StartSpan(ctx context.Context, operation Key) (context.Context, *ActiveSpan) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, ok := Current(ctx)
	tc := t.nextContext(parent, ok, RequestDescriptor{Kind: KindLocal, Path: operation})
	span := t.newSpan(KindLocal, tc, operation)

	ctx, scope := activateSpan(ctx, span)
	span.scope = scope
	return ctx, span
}

// Inject writes the current context of ctx into headers. It reports whether
// anything was active.
func (t *Tracer) Inject(ctx context.Context, set Setter) bool {
	tc, ok := Current(ctx)
	if !ok {
		return false
	}
	t.propagation.Inject(tc, set)
	return true
}

// OnSpanComplete registers a synchronous handler called when spans complete.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSpanCompleteAsync registers an asynchronous handler called when spans complete.
func (t *Tracer) OnSpanCompleteAsync(handler SpanHandler) uint64 {
	return t.registerHandler(handler, true)
}

// AddReporter registers r as an asynchronous handler so reporting never runs
// on the request path.
func (t *Tracer) AddReporter(r Reporter) uint64 {
	if r == nil {
		return 0
	}
	return t.OnSpanCompleteAsync(r.Report)
}

func (t *Tracer) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.panicHook = hook
}

// collectSpan hands a finished span to the handlers. Unsampled spans stop here.
func (t *Tracer) collectSpan(span Span) {
	if !span.Context.Sampled.Bool() {
		return
	}
	t.metrics.reported()
	t.executeHandlers(span)
}

// executeHandlers calls all registered handlers with the completed span.
func (t *Tracer) executeHandlers(span Span) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	workers := t.workers
	t.handlersLock.RUnlock()

	for _, h := range handlers {
		if !h.async {
			t.safeCall(h, span)
			continue
		}
		entry := h
		if workers == nil {
			go t.safeCall(entry, span)
			continue
		}
		if !workers.submit(func() { t.safeCall(entry, span) }) {
			t.metrics.dropped()
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, span Span) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("span handler panicked",
				zap.Uint64("handler_id", entry.id),
				zap.Any("panic", r),
			)
			if t.panicHook != nil {
				t.panicHook(entry.id, r)
			}
		}
	}()
	entry.handler(span)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	if t.workers != nil {
		return errors.New("worker pool already enabled")
	}
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	t.workers = newWorkerPool(workers, queueSize, &t.droppedSpans)
	return nil
}

// DroppedSpans returns the number of spans dropped due to full worker queue.
func (t *Tracer) DroppedSpans() uint64 {
	return t.droppedSpans.Load()
}

// defect logs and counts a tracing failure. Nothing here reaches the request.
func (t *Tracer) defect(err error) {
	switch {
	case errors.Is(err, ErrDoubleFinish):
		t.metrics.doubleFinish()
		t.logger.Error("span finished twice", zap.Error(err))
	case errors.Is(err, ErrSamplingMisuse):
		t.metrics.samplingMisuse()
		t.logger.Warn("sampler consulted twice", zap.Error(err))
	case errors.Is(err, ErrMalformedHeader):
		t.metrics.decodeError()
		t.logger.Debug("ignoring propagation headers", zap.Error(err))
	default:
		t.logger.Warn("tracing defect", zap.Error(err))
	}
}

// Close shuts down the tracer gracefully and cleans up resources.
func (t *Tracer) Close() {
	t.handlersLock.Lock()
	t.handlers = nil
	workers := t.workers
	t.workers = nil
	t.handlersLock.Unlock()

	// Wait for in-flight async tasks.
	if workers != nil {
		workers.shutdown()
	}

	if t.traceIDPool != nil {
		t.traceIDPool.Close()
	}
	if t.spanIDPool != nil {
		t.spanIDPool.Close()
	}
}

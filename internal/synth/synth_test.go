package synth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"chartsynth/internal/bindings"
	"chartsynth/internal/diag"
	"chartsynth/internal/guard"
	"chartsynth/internal/source"
)

// outcomeLog is an injected subscriber recording every committed outcome.
type outcomeLog struct {
	mu       sync.Mutex
	outcomes []guard.Outcome
}

func (l *outcomeLog) record(out guard.Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, out)
}

func (l *outcomeLog) phases() []guard.Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	phases := make([]guard.Phase, len(l.outcomes))
	for i, out := range l.outcomes {
		phases[i] = out.Phase
	}
	return phases
}

func newTestSynthesizer(timeout time.Duration) *Synthesizer {
	return New(bindings.New(nil), Config{ExecTimeout: timeout}, zap.NewNop())
}

func runOnce(t *testing.T, code, name string) (guard.Outcome, *outcomeLog) {
	t.Helper()
	log := &outcomeLog{}
	h := newTestSynthesizer(2 * time.Second).NewHolder(log.record)
	h.Request(context.Background(), source.Generated{Code: code, DeclaredName: name})
	h.Wait()
	return h.Outcome(), log
}

// A self-closing element with props and a matching binding-table name
// reaches rendering; the element itself is built during evaluation, and the
// mounted tree keeps every prop the element carried.
func TestSynthesisOfBareElement(t *testing.T) {
	defer goleak.VerifyNone(t)

	out, log := runOnce(t, `<Bar data={[]any{1, 2}} />`, "Bar")
	require.Equal(t, guard.PhaseRendering, out.Phase)
	require.Nil(t, out.Diagnostic)
	require.NotNil(t, out.Unit)
	require.Equal(t, []guard.Phase{
		guard.PhaseSynthesizing,
		guard.PhaseReady,
		guard.PhaseRendering,
	}, log.phases())

	require.NotNil(t, out.Tree)
	require.Equal(t, "Bar", typeLabel(t, out.Tree.Type))
	require.NotNil(t, out.Tree.Props, "element props dropped between evaluation and mount")
	data, ok := out.Tree.Props.Get("data")
	require.True(t, ok)
	require.Equal(t, []any{1, 2}, data)
}

func TestSynthesisOfDeclaredComponent(t *testing.T) {
	code := `
func SalesChart() any {
	rows := []any{1, 2, 3}
	return <BarChart data={rows}>
		<XAxis dataKey="name"/>
		<Bar dataKey="sales" fill="#8884d8"/>
	</BarChart>
}`
	out, _ := runOnce(t, code, "SalesChart")
	require.Equal(t, guard.PhaseRendering, out.Phase)
	require.NotNil(t, out.Tree)

	rendered := out.Tree
	require.Equal(t, "BarChart", typeLabel(t, rendered.Type))
	require.Len(t, rendered.Children, 2)
	require.Equal(t, "XAxis", typeLabel(t, rendered.Children[0].Type))
	require.Equal(t, "Bar", typeLabel(t, rendered.Children[1].Type))
}

func typeLabel(t *testing.T, typ any) string {
	t.Helper()
	p, ok := typ.(bindings.Primitive)
	require.True(t, ok, "node type %T is not a primitive", typ)
	return p.String()
}

// Source defining nothing resolvable fails resolution, and the message
// names what was searched for.
func TestResolutionFailure(t *testing.T) {
	out, _ := runOnce(t, `x := 42`, "RevenueChart")
	require.Equal(t, guard.PhaseSynthesisFailed, out.Phase)
	require.NotNil(t, out.Diagnostic)
	require.Equal(t, diag.KindResolution, out.Diagnostic.Kind)
	require.Contains(t, out.Diagnostic.Message, "RevenueChart")
}

// Malformed markup fails at transform with an excerpt of the fault site.
func TestTransformFailure(t *testing.T) {
	out, _ := runOnce(t, "func C() any {\n\treturn <Bar><Line/></Baz>\n}", "C")
	require.Equal(t, guard.PhaseSynthesisFailed, out.Phase)
	require.Equal(t, diag.KindTransform, out.Diagnostic.Kind)
	require.Contains(t, out.Diagnostic.SourceExcerpt, "Baz")
}

// Text that survives transformation but is not valid executable code fails
// at the executor, never reaching ready.
func TestExecutionFailure(t *testing.T) {
	out, log := runOnce(t, `func ((( busted`, "C")
	require.Equal(t, guard.PhaseSynthesisFailed, out.Phase)
	require.Equal(t, diag.KindExecution, out.Diagnostic.Kind)
	require.NotContains(t, log.phases(), guard.PhaseReady)
}

// A resolvable component that blows up during its first render pass reaches
// ready, then transitions to render-failed; the ready outcome is not
// retained.
func TestRenderFailure(t *testing.T) {
	code := `
func Crash() any {
	x := 0
	return 1 / x
}`
	out, log := runOnce(t, code, "Crash")
	require.Equal(t, guard.PhaseRenderFailed, out.Phase)
	require.Equal(t, diag.KindRender, out.Diagnostic.Kind)
	require.Nil(t, out.Unit, "failed unit must not be retained")
	require.Contains(t, log.phases(), guard.PhaseReady, "render tier failures happen after ready")
}

// Two sources within one tick: only the newest source's outcome is ever
// committed; the superseded attempt's result is discarded however it
// resolves.
func TestSupersededAttemptIsDiscarded(t *testing.T) {
	log := &outcomeLog{}
	h := newTestSynthesizer(300 * time.Millisecond).NewHolder(log.record)
	ctx := context.Background()

	// Attempt 1 spins until the executor deadline; attempt 2 supersedes it
	// immediately.
	h.Request(ctx, source.Generated{Code: "for {\n}", DeclaredName: "One"})
	h.Request(ctx, source.Generated{Code: `func Two() any { return <Tooltip/> }`, DeclaredName: "Two"})
	h.Wait()

	out := h.Outcome()
	require.Equal(t, guard.PhaseRendering, out.Phase)
	require.Equal(t, "Tooltip", typeLabel(t, out.Tree.Type))

	// The superseded attempt's eventual timeout must never have been
	// committed.
	for _, phase := range log.phases() {
		require.NotEqual(t, guard.PhaseSynthesisFailed, phase)
	}
}

// Concurrent requests race for the slot, but the retained source always
// belongs to the generation that won: a Retry after the dust settles
// re-runs exactly the source whose outcome is showing.
func TestConcurrentRequestsKeepSourceAndGenerationPaired(t *testing.T) {
	h := newTestSynthesizer(2 * time.Second).NewHolder(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Request(ctx, source.Generated{
				Code:         fmt.Sprintf("<Tooltip id={%d}/>", i),
				DeclaredName: "Tooltip",
			})
		}(i)
	}
	wg.Wait()
	h.Wait()

	first := h.Outcome()
	require.Equal(t, guard.PhaseRendering, first.Phase)
	id, ok := first.Tree.Props.Get("id")
	require.True(t, ok)

	h.Retry(ctx)
	h.Wait()

	second := h.Outcome()
	require.Equal(t, guard.PhaseRendering, second.Phase)
	retried, ok := second.Tree.Props.Get("id")
	require.True(t, ok)
	require.Equal(t, id, retried, "retry ran a source from a superseded request")
}

// Re-running the identical source produces identical diagnostics.
func TestDeterministicDiagnostics(t *testing.T) {
	first, _ := runOnce(t, `x := 1`, "Ghost")
	second, _ := runOnce(t, `x := 1`, "Ghost")

	require.Equal(t, guard.PhaseSynthesisFailed, first.Phase)
	require.Equal(t, first.Diagnostic.Kind, second.Diagnostic.Kind)
	require.Equal(t, first.Diagnostic.Message, second.Diagnostic.Message)
}

// Retry re-runs the full pipeline on the same source.
func TestRetry(t *testing.T) {
	log := &outcomeLog{}
	h := newTestSynthesizer(2 * time.Second).NewHolder(log.record)
	ctx := context.Background()

	h.Request(ctx, source.Generated{Code: `x := 1`, DeclaredName: "Ghost"})
	h.Wait()
	first := h.Outcome()
	require.Equal(t, guard.PhaseSynthesisFailed, first.Phase)

	h.Retry(ctx)
	h.Wait()
	second := h.Outcome()
	require.Equal(t, first.Diagnostic.Kind, second.Diagnostic.Kind)
	require.Equal(t, first.Diagnostic.Message, second.Diagnostic.Message)
}

// Externally produced diagnostics (unsupported chart kinds) pass through
// the same outcome surface.
func TestFailPassesThroughExternalDiagnostic(t *testing.T) {
	h := newTestSynthesizer(time.Second).NewHolder(nil)
	h.Fail(diag.New(diag.KindUnsupportedRequest, "gauge charts are not owned by this engine"))

	out := h.Outcome()
	require.Equal(t, guard.PhaseSynthesisFailed, out.Phase)
	require.Equal(t, diag.KindUnsupportedRequest, out.Diagnostic.Kind)
}

// Oversized sources are rejected before any stage runs.
func TestMaxSourceBytes(t *testing.T) {
	s := New(bindings.New(nil), Config{ExecTimeout: time.Second, MaxSourceBytes: 16}, zap.NewNop())
	h := s.NewHolder(nil)
	h.Request(context.Background(), source.Generated{
		Code:         strings.Repeat("x", 64),
		DeclaredName: "Big",
	})
	h.Wait()

	out := h.Outcome()
	require.Equal(t, guard.PhaseSynthesisFailed, out.Phase)
	require.Contains(t, out.Diagnostic.Message, "limit")
}

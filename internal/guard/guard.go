// Package guard implements the two-tier error boundary around a synthesis
// slot: a first tier for synthesis-time failures (sanitize, transform,
// execute, resolve) and a second for render-time failures (mount/update of
// the resolved component). Every failure terminates in a failed phase
// carrying a non-empty diagnostic; nothing is silently swallowed.
package guard

import (
	"fmt"

	"chartsynth/internal/diag"
	"chartsynth/internal/vdom"
)

// Phase is the lifecycle position of one logical request.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSynthesizing
	PhaseReady
	PhaseSynthesisFailed
	PhaseRendering
	PhaseRenderFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSynthesizing:
		return "synthesizing"
	case PhaseReady:
		return "ready"
	case PhaseSynthesisFailed:
		return "synthesis-failed"
	case PhaseRendering:
		return "rendering"
	case PhaseRenderFailed:
		return "render-failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Failed reports whether the phase is one of the terminal failure phases.
func (p Phase) Failed() bool {
	return p == PhaseSynthesisFailed || p == PhaseRenderFailed
}

// legal enumerates the allowed transitions. The failed phases are terminal:
// only Reset (a new generated source) leaves them, so a failed outcome can
// never silently revert to ready.
var legal = map[Phase][]Phase{
	PhaseIdle:         {PhaseSynthesizing},
	PhaseSynthesizing: {PhaseReady, PhaseSynthesisFailed},
	PhaseReady:        {PhaseRendering, PhaseRenderFailed},
	PhaseRendering:    {PhaseRendering, PhaseRenderFailed},
}

// Outcome is the externally visible state of a request slot. Unit is set
// from Ready onward, Tree only while Rendering, Diagnostic only on the
// failure phases.
type Outcome struct {
	Phase      Phase
	Unit       any
	Tree       *vdom.Node
	Diagnostic *diag.Diagnostic
}

// Guard holds the current outcome and enforces the transition table. It is
// not goroutine-safe; the owning holder serializes access.
type Guard struct {
	outcome Outcome
}

// New returns a guard in the idle phase.
func New() *Guard {
	return &Guard{}
}

// Outcome returns the current outcome.
func (g *Guard) Outcome() Outcome { return g.outcome }

// Phase returns the current phase.
func (g *Guard) Phase() Phase { return g.outcome.Phase }

// Reset returns the slot to idle. Allowed from any phase: a new generated
// source invalidates whatever came before, including terminal failures.
func (g *Guard) Reset() {
	g.outcome = Outcome{}
}

func (g *Guard) step(next Outcome) error {
	for _, allowed := range legal[g.outcome.Phase] {
		if next.Phase == allowed {
			g.outcome = next
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", g.outcome.Phase, next.Phase)
}

// Begin enters synthesizing for a fresh source.
func (g *Guard) Begin() error {
	return g.step(Outcome{Phase: PhaseSynthesizing})
}

// Succeed commits the resolved unit.
func (g *Guard) Succeed(unit any) error {
	return g.step(Outcome{Phase: PhaseReady, Unit: unit})
}

// FailSynthesis commits a synthesis-time diagnostic.
func (g *Guard) FailSynthesis(d *diag.Diagnostic) error {
	if d == nil || d.Message == "" {
		return fmt.Errorf("synthesis failure requires a non-empty diagnostic")
	}
	return g.step(Outcome{Phase: PhaseSynthesisFailed, Diagnostic: d})
}

// Render commits a mounted tree. Re-rendering while already rendering is a
// legal self-transition (updates).
func (g *Guard) Render(tree *vdom.Node) error {
	return g.step(Outcome{Phase: PhaseRendering, Unit: g.outcome.Unit, Tree: tree})
}

// FailRender commits a render-time diagnostic. The previously ready unit is
// deliberately not retained: a unit that failed to mount is unsafe to
// remount without a fresh source.
func (g *Guard) FailRender(d *diag.Diagnostic) error {
	if d == nil || d.Message == "" {
		return fmt.Errorf("render failure requires a non-empty diagnostic")
	}
	return g.step(Outcome{Phase: PhaseRenderFailed, Diagnostic: d})
}

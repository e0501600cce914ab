package script

import (
	"slices"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pavanmanishd/genarena"
)

// Outcome is the result of running a single step.
type Outcome struct {
	Step   int
	Op     Op
	Ref    string
	Handle genarena.Handle
	Value  int // payload read by get and take
	Err    error
	Met    bool // whether the step behaved as the script expected
	Leaked []genarena.Handle
}

// Leak is a payload that was still live when the arena was released.
type Leak struct {
	Ref    string
	Handle genarena.Handle
	Index  int
	Value  int
}

// Report summarizes a script run.
type Report struct {
	Outcomes []Outcome
	Leaks    []Leak
	Unmet    int
}

// Runner runs scripts against fresh arenas.
type Runner struct {
	logger log.Logger
	reg    prometheus.Registerer
}

// NewRunner creates a Runner. logger and reg may be nil.
func NewRunner(logger log.Logger, reg prometheus.Registerer) *Runner {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Runner{logger: logger, reg: reg}
}

// Run executes every step of s in order and finally releases the arena,
// collecting whatever was never destroyed. A release step tears the arena
// down early; later steps then observe ErrReleased.
func (r *Runner) Run(s *Script) *Report {
	a := genarena.NewArena[int](s.Arena,
		genarena.WithLogger[int](r.logger),
		genarena.WithRegisterer[int](r.reg),
	)

	refs := map[string]genarena.Handle{}
	rep := &Report{}
	release := func() {
		names := make(map[genarena.Handle]string, len(refs))
		for name, h := range refs {
			names[h] = name
		}
		a.Release(func(h genarena.Handle, index int) {
			// The slot is still readable until the callback returns.
			v, _ := a.Value(h)
			rep.Leaks = append(rep.Leaks, Leak{Ref: names[h], Handle: h, Index: index, Value: v})
		})
	}

	for i, st := range s.Steps {
		out := r.step(a, refs, release, i, st)
		if !out.Met {
			rep.Unmet++
			level.Warn(r.logger).Log("msg", "unexpected step outcome", "step", i, "op", st.Op, "ref", st.Ref, "expect", st.Expect, "err", out.Err)
		} else {
			level.Debug(r.logger).Log("msg", "step", "step", i, "op", st.Op, "ref", st.Ref, "handle", out.Handle)
		}
		rep.Outcomes = append(rep.Outcomes, out)
	}

	// No-op if a release step already tore the arena down.
	release()
	return rep
}

func (r *Runner) step(a *genarena.Arena[int], refs map[string]genarena.Handle, release func(), i int, st Step) Outcome {
	out := Outcome{Step: i, Op: st.Op, Ref: st.Ref, Handle: refs[st.Ref]}

	switch st.Op {
	case OpAllocate:
		out.Handle, out.Err = a.Allocate()
		if out.Err == nil {
			refs[st.Ref] = out.Handle
		}
	case OpNew:
		out.Handle, out.Err = a.New(st.Value)
		if out.Err == nil {
			refs[st.Ref] = out.Handle
		}
	case OpConstruct:
		out.Err = a.Construct(out.Handle, st.Value)
	case OpGet:
		out.Value, out.Err = a.Value(out.Handle)
	case OpTake:
		out.Value, out.Err = a.Take(out.Handle)
	case OpDestroy:
		out.Err = a.Destroy(out.Handle)
	case OpLeaks:
		out.Leaked = slices.Collect(a.LeakedHandles())
	case OpRelease:
		release()
	}

	out.Met = expectationMet(st, out)
	return out
}

func expectationMet(st Step, out Outcome) bool {
	if st.Expect != "" {
		return errors.Is(out.Err, expectations[st.Expect])
	}
	if out.Err != nil {
		return false
	}
	if st.Want != nil {
		return out.Value == *st.Want
	}
	return true
}

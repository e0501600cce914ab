package script

import (
	"bytes"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pavanmanishd/genarena"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var defaults = genarena.Config{Name: genarena.DefaultName, ChunkSize: genarena.DefaultChunkSize}

func TestLoad(t *testing.T) {
	s, err := Load("testdata/lifecycle.yaml", defaults)
	require.NoError(t, err)

	assert.Equal(t, genarena.Config{Name: "lifecycle", ChunkSize: 4}, s.Arena)
	require.Len(t, s.Steps, 13)
	assert.Equal(t, Step{Op: OpAllocate, Ref: "static"}, s.Steps[0])
	assert.Equal(t, Step{Op: OpConstruct, Ref: "static", Value: 11, Expect: "already_live"}, s.Steps[2])
	require.NotNil(t, s.Steps[3].Want)
	assert.Equal(t, 10, *s.Steps[3].Want)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/missing.yaml", defaults)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open script")
}

func TestParseDefaults(t *testing.T) {
	s, err := Parse(strings.NewReader("steps:\n  - {op: new, ref: a, value: 1}\n"), defaults)
	require.NoError(t, err)
	assert.Equal(t, defaults, s.Arena)

	s, err = Parse(strings.NewReader(""), defaults)
	require.NoError(t, err)
	assert.Empty(t, s.Steps)
}

func TestParseInvalid(t *testing.T) {
	tests := map[string]struct {
		doc      string
		expected string
	}{
		"unknown op": {
			doc:      "steps:\n  - {op: free, ref: a}\n",
			expected: `step 0: unknown op "free"`,
		},
		"missing ref": {
			doc:      "steps:\n  - {op: new}\n",
			expected: "step 0: new requires a ref",
		},
		"unknown expectation": {
			doc:      "steps:\n  - {op: new, ref: a}\n  - {op: get, ref: a, expect: dangling}\n",
			expected: `step 1: unknown expectation "dangling"`,
		},
		"want on destroy": {
			doc:      "steps:\n  - {op: destroy, ref: a, want: 1}\n",
			expected: "step 0: want is only valid for get and take",
		},
		"unknown field": {
			doc:      "steps:\n  - {op: new, ref: a, size: 3}\n",
			expected: "field size not found",
		},
		"invalid arena": {
			doc:      "arena:\n  max_slots: -1\n",
			expected: "invalid arena config",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.doc), defaults)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expected)
		})
	}
}

func TestRunnerLifecycle(t *testing.T) {
	s, err := Load("testdata/lifecycle.yaml", defaults)
	require.NoError(t, err)

	reg := prometheus.NewPedanticRegistry()
	rep := NewRunner(log.NewNopLogger(), reg).Run(s)

	require.Len(t, rep.Outcomes, len(s.Steps))
	assert.Zero(t, rep.Unmet)
	for _, out := range rep.Outcomes {
		assert.True(t, out.Met, "step %d (%s %s): %v", out.Step, out.Op, out.Ref, out.Err)
	}

	reused := rep.Outcomes[9]
	assert.Equal(t, OpAllocate, reused.Op)
	assert.Equal(t, 1, reused.Handle.Index())
	assert.Equal(t, uint32(2), reused.Handle.Generation())

	leaks := rep.Outcomes[12].Leaked
	require.Len(t, leaks, 2)
	assert.Equal(t, []int{0, 2}, []int{leaks[0].Index(), leaks[1].Index()})

	assert.Equal(t, []Leak{
		{Ref: "static", Handle: leaks[0], Index: 0, Value: 10},
		{Ref: "dynamic", Handle: leaks[1], Index: 2, Value: 30},
	}, rep.Leaks)

	n, err := testutil.GatherAndCount(reg, "genarena_leaked_slots_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunnerUnmetExpectations(t *testing.T) {
	want := 5
	s := &Script{
		Arena: defaults,
		Steps: []Step{
			{Op: OpNew, Ref: "a", Value: 1},
			{Op: OpGet, Ref: "a", Want: &want},
			{Op: OpDestroy, Ref: "a", Expect: "stale_handle"},
			{Op: OpGet, Ref: "never"},
			{Op: OpDestroy, Ref: "a", Expect: "stale_handle"},
		},
	}

	var buf bytes.Buffer
	rep := NewRunner(log.NewLogfmtLogger(&buf), nil).Run(s)

	assert.Equal(t, 3, rep.Unmet)
	assert.Equal(t, []bool{true, false, false, false, true}, metFlags(rep))
	assert.Equal(t, 1, rep.Outcomes[1].Value)
	require.ErrorIs(t, rep.Outcomes[3].Err, genarena.ErrStaleHandle)
	assert.Empty(t, rep.Leaks)
	assert.Equal(t, 3, strings.Count(buf.String(), `msg="unexpected step outcome"`))
}

func TestRunnerArenaFull(t *testing.T) {
	s := &Script{
		Arena: genarena.Config{Name: "small", MaxSlots: 1},
		Steps: []Step{
			{Op: OpNew, Ref: "a", Value: 1},
			{Op: OpAllocate, Ref: "b", Expect: "arena_full"},
			{Op: OpTake, Ref: "a", Want: new(int)},
			{Op: OpAllocate, Ref: "b"},
		},
	}
	*s.Steps[2].Want = 1

	rep := NewRunner(nil, nil).Run(s)
	assert.Zero(t, rep.Unmet)
	assert.Equal(t, rep.Outcomes[0].Handle.Index(), rep.Outcomes[3].Handle.Index())
	assert.Empty(t, rep.Leaks)
}

func TestRunnerReleaseStep(t *testing.T) {
	s, err := Parse(strings.NewReader(`
steps:
  - {op: new, ref: a, value: 7}
  - {op: new, ref: b, value: 8}
  - {op: take, ref: b, want: 8}
  - {op: release}
  - {op: get, ref: a, expect: released}
  - {op: new, ref: c, value: 9, expect: released}
  - {op: leaks}
`), defaults)
	require.NoError(t, err)

	rep := NewRunner(nil, nil).Run(s)
	assert.Zero(t, rep.Unmet)
	require.ErrorIs(t, rep.Outcomes[4].Err, genarena.ErrReleased)
	assert.Empty(t, rep.Outcomes[6].Leaked)
	require.Len(t, rep.Leaks, 1)
	assert.Equal(t, Leak{Ref: "a", Handle: rep.Outcomes[0].Handle, Index: 0, Value: 7}, rep.Leaks[0])
}

func TestRunnerReusesRegistry(t *testing.T) {
	s, err := Load("testdata/lifecycle.yaml", defaults)
	require.NoError(t, err)

	reg := prometheus.NewPedanticRegistry()
	r := NewRunner(nil, reg)

	first := r.Run(s)
	second := r.Run(s)
	assert.Zero(t, first.Unmet)
	assert.Zero(t, second.Unmet)
	assert.Equal(t, first.Leaks, second.Leaks)

	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
		# HELP genarena_leaked_slots_total Total number of slots still live when the arena was released.
		# TYPE genarena_leaked_slots_total counter
		genarena_leaked_slots_total{arena="lifecycle"} 4
	`), "genarena_leaked_slots_total"))
}

func metFlags(rep *Report) []bool {
	var flags []bool
	for _, out := range rep.Outcomes {
		flags = append(flags, out.Met)
	}
	return flags
}

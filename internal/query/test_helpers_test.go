package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/flexiql/internal/scope"
	"github.com/roach88/flexiql/internal/shadow"
	"github.com/roach88/flexiql/internal/testutil"
)

var demo = scope.Scope{CompanyID: 1, DBName: "demo"}

// testEnv wires an executor to in-memory fakes.
type testEnv struct {
	shadow    *testutil.MemoryShadow
	transport *testutil.RecordingTransport
	compiler  *Compiler
	executor  *Executor
}

func newTestEnv(t *testing.T, opts ...ExecutorOption) *testEnv {
	t.Helper()
	mem := testutil.NewMemoryShadow()
	rt := testutil.NewRecordingTransport()
	c := NewCompiler(testutil.SampleRegistry(), nil, shadow.NewResolver(mem))
	return &testEnv{
		shadow:    mem,
		transport: rt,
		compiler:  c,
		executor:  NewExecutor(c, rt, opts...),
	}
}

// compile compiles q in the demo scope and fails the test on error.
func (env *testEnv) compile(t *testing.T, q Query) *Plan {
	t.Helper()
	plan, err := env.compiler.Compile(context.Background(), demo, q)
	require.NoError(t, err)
	return plan
}

// collect drains a Fetch sequence.
func collect(t *testing.T, x *Executor, q Query) ([]Row, []error) {
	t.Helper()
	var rows []Row
	var errs []error
	for row, err := range x.Fetch(context.Background(), demo, q) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, errs
}

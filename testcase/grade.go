package testcase

import (
	"context"
	"log"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ezrec/asmemu/emulator"
)

// Factory creates a fresh machine.
type Factory[R ~string] func() (*emulator.Machine[R], error)

// Grader runs every case of a suite on its own machine, in parallel.
type Grader[R ~string] struct {
	Verbose  bool
	Factory  Factory[R]
	Limit    int // Halt limit when the suite has none.
	Parallel int // Concurrent machines; 0 is GOMAXPROCS.
}

// Grade compiles the source once per case and runs the cases. Results are
// in suite order. A failed compile or a cancelled context stops grading;
// faults and bad preset state only fail their own case.
func (gr *Grader[R]) Grade(ctx context.Context, source string, suite *Suite[R]) (results []*emulator.TestcaseResult[R], err error) {
	limit := suite.Limit
	if limit == 0 {
		limit = gr.Limit
	}

	parallel := gr.Parallel
	if parallel <= 0 {
		parallel = runtime.GOMAXPROCS(0)
	}

	results = make([]*emulator.TestcaseResult[R], len(suite.Cases))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(parallel)

	for n, tc := range suite.Cases {
		group.Go(func() (err error) {
			err = ctx.Err()
			if err != nil {
				return
			}

			m, err := gr.Factory()
			if err != nil {
				return
			}
			defer m.Dispose()

			err = m.Compile(source)
			if err != nil {
				err = &ErrCase{Name: tc.Name, Err: err}
				return
			}

			if gr.Verbose {
				log.Printf("testcase: %v: running, limit %d", tc.Name, limit)
			}

			results[n] = m.RunTestcase(tc, limit)
			return
		})
	}

	err = group.Wait()
	if err != nil {
		results = nil
	}

	return
}

package scenario

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zboralski/pteosal/internal/config"
	"github.com/zboralski/pteosal/internal/kernel"
	glog "github.com/zboralski/pteosal/internal/log"
	"github.com/zboralski/pteosal/internal/osal"
	"github.com/zboralski/pteosal/internal/trace"
)

// KernelFactory returns a fresh kernel for one scenario run.
type KernelFactory func() (kernel.Kernel, error)

// Result is the outcome of one scenario.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
	Events   []*trace.Event
}

// Passed reports whether the scenario found nothing wrong.
func (r Result) Passed() bool { return r.Err == nil }

// Runner runs scenarios, each on its own kernel and OSAL instance.
type Runner struct {
	Registry  *Registry
	NewKernel KernelFactory
	Config    config.Config
	Logger    *glog.Logger
	Parallel  int // Concurrent scenarios; 0 or 1 runs them one at a time
}

// NewRunner returns a runner over the default registry.
func NewRunner(cfg config.Config, newKernel KernelFactory) *Runner {
	return &Runner{
		Registry:  DefaultRegistry,
		NewKernel: newKernel,
		Config:    cfg,
		Logger:    glog.Default(),
	}
}

// Run runs one scenario by name.
func (r *Runner) Run(ctx context.Context, name string) Result {
	res := Result{Name: name}
	def, ok := r.Registry.Get(name)
	if !ok {
		res.Err = fmt.Errorf("unknown scenario %q", name)
		return res
	}

	k, err := r.NewKernel()
	if err != nil {
		res.Err = fmt.Errorf("kernel: %w", err)
		return res
	}

	var events trace.Collector
	o := osal.New(k,
		osal.WithConfig(r.Config),
		osal.WithLogger(r.Logger.WithCategory(def.Category)),
		osal.WithEventHook(events.Add),
	)

	start := time.Now()
	ictx, err := o.Init(ctx)
	if err != nil {
		res.Err = fmt.Errorf("init: %w", err)
	} else {
		res.Err = def.Run(ictx, o)
	}
	res.Duration = time.Since(start)
	res.Events = events.GetAndClear()

	if res.Err != nil {
		r.Logger.Error("scenario failed", zap.String("scenario", name), zap.Error(res.Err))
	} else {
		r.Logger.Debug("scenario passed", zap.String("scenario", name), zap.Duration("took", res.Duration))
	}
	return res
}

// RunAll runs the named scenarios, or every registered one when names is
// empty. Results come back in the order of names.
func (r *Runner) RunAll(ctx context.Context, names []string) ([]Result, error) {
	if len(names) == 0 {
		for _, d := range r.Registry.List() {
			names = append(names, d.Name)
		}
	}
	for _, n := range names {
		if _, ok := r.Registry.Get(n); !ok {
			return nil, fmt.Errorf("unknown scenario %q", n)
		}
	}

	results := make([]Result, len(names))
	g, gctx := errgroup.WithContext(ctx)
	if r.Parallel > 1 {
		g.SetLimit(r.Parallel)
	} else {
		g.SetLimit(1)
	}

	for i, n := range names {
		i, n := i, n
		g.Go(func() error {
			results[i] = r.Run(gctx, n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

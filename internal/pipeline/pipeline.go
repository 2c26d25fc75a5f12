// Package pipeline models the linear chain of typed stages that moves
// query chunks from ingestion through placement to output. Stage
// boundaries are deliberately typed as plain Go values passed through
// `any`, not because the data is untyped but because the chain's shape is
// assembled at wiring time (prescoring vs. direct) from stages with
// different concrete I/O types — the same seam that would let a
// distributed deployment pipe stages between separate processes.
package pipeline

import "context"

// Stage is one link in the chain: given the previous stage's output (nil
// for the head stage), produce this stage's output.
type Stage func(ctx context.Context, in any) (out any, err error)

// IsLast is implemented by any stage-0 output type that can signal the
// scheduler to stop after the current cycle drains through the rest of
// the chain.
type IsLast interface {
	IsLastCycle() bool
}

// Pipeline is a linear chain of stages run to completion: init once,
// then repeat (prehook, S0..Sk) cycles until S0's output reports
// IsLastCycle, then finalize once.
type Pipeline struct {
	stages   []Stage
	initPipe func(ctx context.Context) error
	finalize func(ctx context.Context) error
	prehook  func(ctx context.Context) error
}

// Option configures a Pipeline at construction.
type Option func(*Pipeline)

// WithInit sets the singleton hook run once before the first cycle.
func WithInit(fn func(ctx context.Context) error) Option {
	return func(p *Pipeline) { p.initPipe = fn }
}

// WithFinalize sets the singleton hook run once after the last cycle.
func WithFinalize(fn func(ctx context.Context) error) Option {
	return func(p *Pipeline) { p.finalize = fn }
}

// WithPrehook sets the hook run before every cycle's ingestion stage.
func WithPrehook(fn func(ctx context.Context) error) Option {
	return func(p *Pipeline) { p.prehook = fn }
}

// New builds a pipeline from an ordered stage list; stages[0] is S0 (Void
// input, must produce an IsLast-reporting value) and the last stage is Sk
// (Void output).
func New(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{stages: stages}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes cycles until S0 reports the last cycle, then finalizes.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.initPipe != nil {
		if err := p.initPipe(ctx); err != nil {
			return err
		}
	}
	for {
		if p.prehook != nil {
			if err := p.prehook(ctx); err != nil {
				return err
			}
		}

		var val any
		var err error
		var last bool
		for i, stage := range p.stages {
			val, err = stage(ctx, val)
			if err != nil {
				return err
			}
			if i == 0 {
				if marker, ok := val.(IsLast); ok {
					last = marker.IsLastCycle()
				}
			}
		}
		if last {
			break
		}
	}
	if p.finalize != nil {
		if err := p.finalize(ctx); err != nil {
			return err
		}
	}
	return nil
}

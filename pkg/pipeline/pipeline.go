// Package pipeline implements the Stream Pipeline (C5): a DAG of
// read/analyze/write Operations with parallel reads, serialized writes,
// dependency resolution, and per-read result caching. The execution-
// context/shared-state shape is grounded on hector's (legacy)
// workflow/executor.go ExecutionContext, generalized from a fixed
// workflow-step sequence into an arbitrary DAG.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kadirpekel/forge/pkg/logger"
	"github.com/kadirpekel/forge/pkg/tool"
)

// OpType is the kind of work an Operation performs.
type OpType string

const (
	OpRead    OpType = "read"
	OpAnalyze OpType = "analyze"
	OpWrite   OpType = "write"
)

// Operation is one DAG node: a tool invocation plus its dependency ids.
type Operation struct {
	ID        string
	Type      OpType
	Tool      string
	Args      map[string]any
	Priority  int
	DependsOn []string
}

// OperationResult is what process() yields per operation.
type OperationResult struct {
	OperationID string
	Result      *tool.Result
	CacheHit    bool
}

// Registry is the subset of *tool.Registry the pipeline depends on.
type Registry interface {
	Execute(ctx context.Context, name string, args map[string]any) (*tool.Result, error)
	MaterializeDefaults(name string, args map[string]any) map[string]any
}

// Pipeline executes one DAG of Operations. A Pipeline instance exclusively
// owns its operation set and result cache (spec.md §3 "Ownership"); build
// a fresh Pipeline per submission via New, or share one across
// submissions to promote the cache to a broader scope.
type Pipeline struct {
	registry        Registry
	readConcurrency int
	cache           *cacheStore
	log             *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCache replaces the default 256-entry cache with one of the given
// capacity. The cache belongs to the Pipeline, so every Run submitted
// through the same Pipeline shares it.
func WithCache(capacity int) Option {
	return func(p *Pipeline) { p.cache = newCacheStore(capacity) }
}

// New builds a Pipeline bounded by the given read concurrency.
func New(registry Registry, readConcurrency int, opts ...Option) *Pipeline {
	if readConcurrency <= 0 {
		readConcurrency = 8
	}
	p := &Pipeline{
		registry:        registry,
		readConcurrency: readConcurrency,
		cache:           newCacheStore(256),
		log:             logger.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CacheStats returns the pipeline cache's hit/miss/size snapshot.
func (p *Pipeline) CacheStats() Stats { return p.cache.stats() }

// Submit validates the DAG (unknown dependency ids, duplicate ids,
// cycles are all synchronous rejections) and, if valid, returns a
// *Run that Process can drive. Splitting validation from execution lets
// callers reject malformed DAGs before anything runs, as spec.md §4.5
// requires ("Reject at submission").
func (p *Pipeline) Submit(ops []Operation) (*Run, error) {
	byID := make(map[string]Operation, len(ops))
	for _, op := range ops {
		if _, dup := byID[op.ID]; dup {
			return nil, fmt.Errorf("pipeline: duplicate operation id %q", op.ID)
		}
		byID[op.ID] = op
	}
	for _, op := range ops {
		for _, dep := range op.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("pipeline: operation %q depends on unknown id %q", op.ID, dep)
			}
		}
	}
	if cyc, ok := findCycle(byID); ok {
		return nil, fmt.Errorf("pipeline: dependency cycle detected involving %q", cyc)
	}

	downstream := make(map[string][]string)
	for _, op := range ops {
		for _, dep := range op.DependsOn {
			downstream[dep] = append(downstream[dep], op.ID)
		}
	}

	return &Run{
		pipeline:   p,
		ops:        byID,
		downstream: downstream,
		remaining:  len(byID),
		results:    make(map[string]OperationResult, len(byID)),
		satisfied:  make(map[string]int, len(byID)),
	}, nil
}

// findCycle runs a standard three-color DFS over the dependency graph
// and returns the id where a cycle was detected, per spec.md §9
// "Cyclic structures".
func findCycle(ops map[string]Operation) (string, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(ops))
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, dep := range ops[id].DependsOn {
			switch color[dep] {
			case gray:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}
	for id := range ops {
		if color[id] == white {
			if visit(id) {
				return id, true
			}
		}
	}
	return "", false
}

// Run is one in-progress execution of a submitted DAG.
type Run struct {
	pipeline   *Pipeline
	ops        map[string]Operation
	downstream map[string][]string

	mu        sync.Mutex
	remaining int
	results   map[string]OperationResult
	satisfied map[string]int // count of completed dependencies seen so far

	writeMu sync.Mutex // the write-exclusivity invariant (spec.md §4.5, §8)
}

// Process runs the DAG to completion and returns every OperationResult in
// completion order. Reads and analyzes with satisfied dependencies run
// concurrently, bounded by the pipeline's read concurrency; writes run
// serially, one at a time, in an order consistent with the DAG.
func (r *Run) Process(ctx context.Context) []OperationResult {
	out := make(chan OperationResult, len(r.ops))
	sem := make(chan struct{}, r.pipeline.readConcurrency)
	var wg sync.WaitGroup

	ready := r.rootsReady()
	var dispatch func(ids []string)
	dispatch = func(ids []string) {
		for _, id := range ids {
			op := r.ops[id]
			wg.Add(1)
			go func(op Operation) {
				defer wg.Done()
				if op.Type != OpWrite {
					sem <- struct{}{}
					defer func() { <-sem }()
				}
				result := r.runOne(ctx, op)
				out <- result

				next := r.markDone(op.ID)
				dispatch(next)
			}(op)
		}
	}
	dispatch(ready)

	go func() {
		wg.Wait()
		close(out)
	}()

	collected := make([]OperationResult, 0, len(r.ops))
	for res := range out {
		collected = append(collected, res)
	}
	return collected
}

func (r *Run) rootsReady() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ready []string
	for id, op := range r.ops {
		if len(op.DependsOn) == 0 {
			ready = append(ready, id)
		}
	}
	return ready
}

// markDone records that op has finished and returns the downstream
// operations whose dependencies are now fully satisfied.
func (r *Run) markDone(opID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next []string
	for _, candidate := range r.downstream[opID] {
		r.satisfied[candidate]++
		if r.satisfied[candidate] == len(r.ops[candidate].DependsOn) {
			next = append(next, candidate)
		}
	}
	return next
}

func (r *Run) upstreamFailed(op Operation) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dep := range op.DependsOn {
		if res, ok := r.results[dep]; ok && !res.Result.Success {
			return dep, true
		}
	}
	return "", false
}

func (r *Run) runOne(ctx context.Context, op Operation) OperationResult {
	if failedDep, failed := r.upstreamFailed(op); failed {
		failResult := tool.Failure(tool.ErrDependency,
			fmt.Sprintf("upstream operation %q failed", failedDep))
		failResult.Metadata["failed_dependency"] = failedDep
		result := OperationResult{OperationID: op.ID, Result: failResult}
		r.store(result)
		return result
	}

	if op.Type == OpRead {
		key := fingerprint(r.pipeline.registry, op.Tool, op.Args)
		if cached, ok := r.pipeline.cache.get(key); ok {
			result := OperationResult{OperationID: op.ID, Result: cached, CacheHit: true}
			r.store(result)
			return result
		}
		res := r.execute(ctx, op)
		if res.Success {
			r.pipeline.cache.put(key, res)
		}
		result := OperationResult{OperationID: op.ID, Result: res}
		r.store(result)
		return result
	}

	if op.Type == OpWrite {
		r.writeMu.Lock()
		defer r.writeMu.Unlock()
	}

	res := r.execute(ctx, op)
	result := OperationResult{OperationID: op.ID, Result: res}
	r.store(result)
	return result
}

func (r *Run) execute(ctx context.Context, op Operation) *tool.Result {
	res, err := r.pipeline.registry.Execute(ctx, op.Tool, op.Args)
	if err != nil {
		return tool.Failure(tool.ErrInternal, err.Error())
	}
	return res
}

func (r *Run) store(res OperationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[res.OperationID] = res
}

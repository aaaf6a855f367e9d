package pipeline

import (
	"context"
	"sync"

	"github.com/docpipe/engine/pipeline/emit"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const initialStepKey = "_initial_"

// DAGRunner runs a DAG pipeline descriptor: nodes execute in
// topologically-sorted levels, concurrently within a level under one
// run-scoped semaphore.
type DAGRunner struct {
	registry *Registry
	logger   zerolog.Logger
	emitter  emit.Emitter
	cfg      engineConfig
}

// NewDAGRunner builds a DAGRunner backed by registry.
func NewDAGRunner(registry *Registry, logger zerolog.Logger, emitter emit.Emitter, opts ...Option) *DAGRunner {
	cfg := engineConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &DAGRunner{registry: registry, logger: logger, emitter: emitter, cfg: cfg}
}

// Run executes descriptor's levels in order, returning every Result in
// emission order plus a final synthetic orchestrator failure if any
// node never executed.
func (r *DAGRunner) Run(ctx context.Context, descriptor *PipelineDescriptor, root Payload, jobID string) []Result {
	payloadsByStep := map[string][]Payload{initialStepKey: {root}}
	executed := make(map[string]bool)
	sem := semaphore.NewWeighted(int64(descriptor.MaxConcurrency))

	var allResults []Result

	for _, level := range descriptor.Levels() {
		type nodeOutcome struct {
			nodeID  string
			results []Result
			fanOut  []Payload
			image   []Payload
		}
		outcomes := make([]nodeOutcome, len(level))
		var wg sync.WaitGroup

		for i, node := range level {
			i, node := i, node
			inputs, ok := r.gatherInputs(node, payloadsByStep)
			if !ok {
				r.logger.Info().Str("node", node.ID).Msg("dependency produced zero payloads; skipping node")
				outcomes[i] = nodeOutcome{nodeID: node.ID, results: []Result{Skipped(node.Processor, "all dependencies failed or produced no payloads", Metadata{})}}
				executed[node.ID] = true
				continue
			}

			proc, err := r.registry.Create(node.Processor, node.Params, r.logger)
			if err != nil {
				outcomes[i] = nodeOutcome{nodeID: node.ID, results: []Result{Failure(node.Processor, err.Error(), Metadata{}, 0)}}
				executed[node.ID] = true
				continue
			}

			executed[node.ID] = true
			wg.Add(1)
			go func() {
				defer wg.Done()
				out := r.runNode(ctx, proc, inputs, jobID, sem, r.cfg.metrics)
				outcomes[i] = nodeOutcome{nodeID: node.ID, results: out.results, fanOut: out.fanOut, image: out.image}
			}()
		}
		wg.Wait()

		for _, out := range outcomes {
			if out.nodeID == "" {
				continue
			}
			allResults = append(allResults, out.results...)
			if len(out.fanOut) > 0 {
				payloadsByStep[out.nodeID] = append(payloadsByStep[out.nodeID], out.fanOut...)
			}
			if len(out.image) > 0 {
				payloadsByStep[out.nodeID] = append(payloadsByStep[out.nodeID], out.image...)
			}
		}
	}

	if len(executed) != len(descriptor.Nodes) {
		allResults = append(allResults, Failure(
			"pipeline_orchestrator",
			"not every configured node executed",
			Metadata{},
			0,
		))
	}

	return allResults
}

type nodeRunOutcome struct {
	results []Result
	fanOut  []Payload
	image   []Payload
}

// runNode launches one wrapped execute per input payload under the run's
// shared semaphore, collecting fan-out children and 1:1
// propagation children separately.
func (r *DAGRunner) runNode(ctx context.Context, proc Processor, inputs []Payload, jobID string, sem *semaphore.Weighted, metrics *Metrics) nodeRunOutcome {
	results := make([]Result, len(inputs))
	fanOuts := make([][]Payload, len(inputs))
	images := make([]Payload, len(inputs))
	hasImage := make([]bool, len(inputs))
	var wg sync.WaitGroup

	for i, payload := range inputs {
		i, payload := i, payload
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Failure(proc.Name(), ErrCancelled, Metadata{PageNumber: payload.PageNumber, ParentDocumentID: payload.ParentDocumentID}, 0)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			res := Execute(ctx, proc, payload, jobID, r.logger, r.emitter, metrics, r.cfg.defaultTimeout)
			results[i] = res
			if res.StructuredResults.IsFanOut() {
				children := make([]Payload, 0, len(res.StructuredResults.DocumentPayloads))
				for _, child := range res.StructuredResults.DocumentPayloads {
					children = append(children, child.WithResult(res))
				}
				fanOuts[i] = children
			} else if res.Status == StatusSuccess && res.StructuredResults.HasImage() {
				child := payload.Child(res.StructuredResults.ImageData, payload.PageNumber)
				child.ParentDocumentID = payload.ParentDocumentID
				images[i] = child.WithResult(res)
				hasImage[i] = true
			}
		}()
	}
	wg.Wait()

	out := nodeRunOutcome{results: results}
	for _, children := range fanOuts {
		out.fanOut = append(out.fanOut, children...)
	}
	for i, has := range hasImage {
		if has {
			out.image = append(out.image, images[i])
		}
	}
	return out
}

// gatherInputs resolves a node's inputs: the root payload for a node with no
// dependencies, or the concatenation of every dependency's output payloads.
// Returns ok=false if any dependency produced zero payloads.
func (r *DAGRunner) gatherInputs(node Node, payloadsByStep map[string][]Payload) ([]Payload, bool) {
	if len(node.Dependencies) == 0 {
		return payloadsByStep[initialStepKey], true
	}
	var inputs []Payload
	for _, dep := range node.Dependencies {
		depPayloads, ok := payloadsByStep[dep]
		if !ok || len(depPayloads) == 0 {
			return nil, false
		}
		inputs = append(inputs, depPayloads...)
	}
	return inputs, true
}

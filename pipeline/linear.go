package pipeline

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/docpipe/engine/pipeline/emit"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// LinearRunner runs a linear pipeline descriptor: steps execute in
// order, each step may fan out one payload into many, or propagate 1:1.
type LinearRunner struct {
	registry *Registry
	logger   zerolog.Logger
	emitter  emit.Emitter
	cfg      engineConfig
}

// NewLinearRunner builds a LinearRunner backed by registry.
func NewLinearRunner(registry *Registry, logger zerolog.Logger, emitter emit.Emitter, opts ...Option) *LinearRunner {
	cfg := engineConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &LinearRunner{registry: registry, logger: logger, emitter: emitter, cfg: cfg}
}

// Run executes descriptor's steps in order against root, returning every
// Result emitted across the whole run in emission order.
func (r *LinearRunner) Run(ctx context.Context, descriptor *PipelineDescriptor, root Payload, jobID string) []Result {
	payloads := map[string]Payload{"0": root}
	var allResults []Result

	for stepIdx, step := range descriptor.Steps {
		proc, err := r.registry.Create(step.Name, step.Params, r.logger)
		if err != nil {
			allResults = append(allResults, Failure(step.Name, err.Error(), Metadata{}, 0))
			break
		}

		keys := sortedKeys(payloads)
		sem := semaphore.NewWeighted(int64(descriptor.MaxConcurrency))
		results := make(map[string]Result, len(keys))
		var mu sync.Mutex
		var wg sync.WaitGroup

		for _, key := range keys {
			key := key
			payload := payloads[key]
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				results[key] = Failure(proc.Name(), ErrCancelled, Metadata{PageNumber: payload.PageNumber, ParentDocumentID: payload.ParentDocumentID}, 0)
				mu.Unlock()
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				res := Execute(ctx, proc, payload, jobID, r.logger, r.emitter, r.cfg.metrics, r.cfg.defaultTimeout)
				mu.Lock()
				results[key] = res
				mu.Unlock()
			}()
		}
		wg.Wait()

		for _, key := range keys {
			allResults = append(allResults, results[key])
		}

		next, err := r.nextPayloads(payloads, keys, results, r.logger)
		if err != nil {
			r.logger.Warn().Err(err).Str("step", step.Name).Msg("multiple fan-out results in one step; honoring only the first")
		}
		payloads = next

		if len(payloads) == 0 && stepIdx != len(descriptor.Steps)-1 {
			r.logger.Info().Str("step", step.Name).Msg("no payloads survive this step; terminating run early")
			break
		}
	}

	return allResults
}

// nextPayloads decides the next payload set: fan-out wins over 1:1 propagation,
// and only the first fan-out result in a step is honored.
func (r *LinearRunner) nextPayloads(payloads map[string]Payload, keys []string, results map[string]Result, logger zerolog.Logger) (map[string]Payload, error) {
	fanOutCount := 0
	var fanOutResult Result
	for _, key := range keys {
		res := results[key]
		if res.StructuredResults.IsFanOut() {
			fanOutCount++
			if fanOutCount == 1 {
				fanOutResult = res
			}
		}
	}

	if fanOutCount > 0 {
		next := make(map[string]Payload, len(fanOutResult.StructuredResults.DocumentPayloads))
		for _, child := range fanOutResult.StructuredResults.DocumentPayloads {
			child = child.WithResult(fanOutResult)
			key := SyntheticKey()
			if child.PageNumber != nil {
				key = pageKey(*child.PageNumber)
			}
			next[key] = child
		}
		var err error
		if fanOutCount > 1 {
			err = ErrMultipleFanOut
		}
		return next, err
	}

	next := make(map[string]Payload)
	for _, key := range keys {
		res := results[key]
		if res.Status != StatusSuccess || !res.StructuredResults.HasImage() {
			continue
		}
		parent := payloads[key]
		child := parent.Child(res.StructuredResults.ImageData, parent.PageNumber)
		child.ParentDocumentID = parent.ParentDocumentID
		child = child.WithResult(res)
		next[key] = child
	}
	return next, nil
}

func sortedKeys(m map[string]Payload) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func pageKey(page int) string {
	return "page:" + strconv.Itoa(page)
}

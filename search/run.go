package search

import (
	"math/rand"
	"time"

	"github.com/itohio/subgraphopt/cache"
	"github.com/itohio/subgraphopt/candidates"
	"github.com/itohio/subgraphopt/classify"
	"github.com/itohio/subgraphopt/config"
	"github.com/itohio/subgraphopt/internal/logx"
	"github.com/itohio/subgraphopt/operator"
	"github.com/itohio/subgraphopt/preprocess"
	"github.com/itohio/subgraphopt/subgraph"
	"github.com/itohio/subgraphopt/verify"
)

// Run explores insertions of tmpls into input up to depth, emitting every
// subgraph that passes verification at threshold. cfg threads the
// equivalence-regime toggles; mutCache, when non-nil, is consulted and
// populated for single-Conv/single-Matmul inputs. Shape-kinds with two
// canonicalizing preprocess builders (GroupConv, TransposeGroupConv) run a
// full DFS pass per builder and the results are unioned; every other kind
// runs at most one pass. Run never mutates input. A panic raised while
// searching is recovered here, logged, and turned into an empty result.
func Run(input *subgraph.Subgraph, depth int, tmpls []candidates.Template, threshold float64, cfg config.Config, mutCache *cache.Cache) (results []*subgraph.Subgraph) {
	defer func() {
		if r := recover(); r != nil {
			logx.Log.Error().Interface("panic", r).Msg("search: invariant violation, returning empty result")
			results = nil
		}
	}()
	if cfg.Disabled() {
		logx.Log.Debug().Msg("search: both equivalence regimes disabled, returning empty result")
		return nil
	}
	effDepth := cfg.EffectiveDepth(depth)
	if effDepth <= 0 || len(input.Ops()) == 0 {
		return nil
	}
	effThreshold := cfg.Threshold(threshold)

	var key cache.Key
	var cacheable bool
	if mutCache != nil {
		if k, ok := cache.KeyFor(input); ok {
			key, cacheable = k, true
			if hit, found := mutCache.Lookup(key); found {
				logx.Log.Debug().Msg("search: mutation cache hit")
				return hit
			}
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	ref, ok := verify.BuildReference(input, rng)
	if !ok {
		logx.Log.Warn().Msg("search: sampling collision computing input subgraph reference")
		return nil
	}

	recipStore := discoverReciprocityChains(rng)

	kind := classify.Classify(input)
	builders := preprocess.ForKind(kind)
	if len(builders) == 0 {
		builders = []preprocess.Builder{nil}
	}

	for _, builder := range builders {
		working := input.CloneInto()
		opList := append([]operator.Operator(nil), working.Ops()...)
		numReserveOps := 0

		if builder != nil {
			before := working.Pool().NumValid()
			res, err := builder(working)
			if err != nil {
				working.Pool().Truncate(before)
				logx.Log.Debug().Str("kind", kind.String()).Err(err).Msg("search: preprocess builder declined, proceeding from clean state")
			} else {
				opList = res.Ops
				numReserveOps = res.NumReserveOps
			}
		}

		sub := &state{
			sg:            working,
			opList:        opList,
			cfg:           cfg,
			templates:     tmpls,
			threshold:     effThreshold,
			maxDepth:      effDepth,
			numReserveOps: numReserveOps,
			inputCount:    len(input.Inputs()),
			origOutputs:   input.Outputs(),
			origShapes:    shapesOf(input, input.Outputs()),
			visited:       make(map[uint64]bool),
			recipStore:    recipStore,
			ref:           ref,
			rng:           rng,
		}

		sub.dfs(0)
		results = append(results, sub.results...)
	}

	if cacheable {
		mutCache.Store(key, results)
	}
	return results
}

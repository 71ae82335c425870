package rtree

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/obsrvr-basket-reader/internal/cache"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/futures"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/interp"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/logging"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/metrics"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/source"
)

// ArrayOptions customizes one array request.
type ArrayOptions struct {
	// EntryStart and EntryStop delimit a half-open entry range.
	// Negative values count back from the branch's total; a stop of
	// zero means the end of the branch.
	EntryStart int64
	EntryStop  int64

	// DecompressionExecutor runs basket decompression and parsing.
	// Nil runs those stages synchronously.
	DecompressionExecutor futures.Executor

	// InterpretationExecutor runs basket interpretation. Nil runs it
	// synchronously.
	InterpretationExecutor futures.Executor

	// Library selects the output representation by tag. Empty means
	// "np" (flat typed slices).
	Library string
}

func (o ArrayOptions) resolve() (futures.Executor, futures.Executor, interp.Library, error) {
	decomp := o.DecompressionExecutor
	if decomp == nil {
		decomp = futures.TrivialExecutor{}
	}
	interpExec := o.InterpretationExecutor
	if interpExec == nil {
		interpExec = futures.TrivialExecutor{}
	}
	tag := o.Library
	if tag == "" {
		tag = "np"
	}
	lib, err := interp.LibraryByTag(tag)
	if err != nil {
		return nil, nil, nil, err
	}
	return decomp, interpExec, lib, nil
}

// Array materializes the branch's entries under the given
// interpretation. Identical requests share one cache entry: a second
// call with the same parameters returns the cached array, and a
// concurrent duplicate waits for the first computation instead of
// repeating it.
func (b *Branch) Array(ctx context.Context, ip interp.Interpretation, opts ArrayOptions) (any, error) {
	decomp, interpExec, lib, err := opts.resolve()
	if err != nil {
		return nil, err
	}
	start, stop := NormalizeEntries(opts.EntryStart, opts.EntryStop, b.NumEntries())

	cid := logging.CorrelationID(ctx)
	if cid == "" {
		cid = logging.GenerateCorrelationID()
		ctx = logging.WithCorrelationID(ctx, cid)
	}
	log := logging.RequestLogger(cid, b.tree.path, b.info.Name, start, stop)
	log.Debug("array requested", "interpretation", ip.CacheKey())

	if g, ok := ip.(interp.AsGrouped); ok {
		v, err := b.groupedArray(ctx, g, opts, lib, start, stop)
		if err != nil {
			log.Error("array request failed", "error", err)
		}
		return v, err
	}
	if err := b.validateInterpretation(ip); err != nil {
		return nil, err
	}

	key := cache.ArrayKey(b.key, ip.CacheKey(), start, stop, lib.Tag())
	computed := false
	v, err := b.tree.file.arrayCache.GetOrCompute(key, func() (any, int64, error) {
		computed = true
		began := time.Now()
		v, err := b.readRange(ctx, ip, start, stop, decomp, interpExec, lib)
		if err != nil {
			return nil, 0, err
		}
		if m := metrics.Get(); m != nil {
			m.ArrayBuildDuration.WithLabelValues(b.tree.path, b.info.Name).Observe(time.Since(began).Seconds())
			m.ArrayCacheMisses.Inc()
		}
		return v, arrayBytes(v), nil
	})
	if m := metrics.Get(); m != nil {
		if !computed && err == nil {
			m.ArrayCacheHits.Inc()
		}
		m.ArrayCacheBytes.Set(float64(b.tree.file.arrayCache.Bytes()))
	}
	if err != nil {
		log.Error("array request failed", "error", err)
	}
	return v, err
}

// groupedArray reads every subbranch of a grouped interpretation and
// assembles them through the library's Group.
func (b *Branch) groupedArray(ctx context.Context, g interp.AsGrouped, opts ArrayOptions, lib interp.Library, start, stop int64) (any, error) {
	names := g.SubbranchNames()
	key := cache.ArrayKey(b.key, g.CacheKey(), start, stop, lib.Tag())

	return b.tree.file.arrayCache.GetOrCompute(key, func() (any, int64, error) {
		columns := make([]any, len(names))
		eg, ctx := errgroup.WithContext(ctx)
		for i, name := range names {
			sub, err := b.subbranch(name)
			if err != nil {
				return nil, 0, err
			}
			subOpts := opts
			subOpts.EntryStart = start
			subOpts.EntryStop = stop
			eg.Go(func() error {
				v, err := sub.Array(ctx, g.Subbranches[name], subOpts)
				if err != nil {
					return err
				}
				columns[i] = v
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, 0, err
		}

		byName := make(map[string]any, len(names))
		var size int64
		for i, name := range names {
			byName[name] = columns[i]
			size += arrayBytes(columns[i])
		}
		v, err := lib.Group(byName, names)
		if err != nil {
			return nil, 0, err
		}
		return v, size, nil
	})
}

// subbranch resolves a grouped interpretation's column name to a branch
// of the same tree, bare or qualified by the parent's name.
func (b *Branch) subbranch(name string) (*Branch, error) {
	if sub, err := b.tree.Branch(name); err == nil {
		return sub, nil
	}
	return b.tree.Branch(b.info.Name + "/" + name)
}

// pipelineStage orders the per-basket work: bytes arrived, basket
// parsed, fragment built.
type pipelineStage int

const (
	stageFetched pipelineStage = iota
	stageParsed
	stageDone
)

type pipelineEvent struct {
	unit  int
	stage pipelineStage
	chunk *source.Chunk
	err   error
}

// queueReporter is satisfied by executors that expose their backlog.
type queueReporter interface {
	QueueDepth() int
}

func reportQueueDepth(exec futures.Executor) {
	m := metrics.Get()
	if m == nil {
		return
	}
	if q, ok := exec.(queueReporter); ok {
		m.WorkerQueueDepth.Set(float64(q.QueueDepth()))
	}
}

// readRange runs the fetch/decode pipeline for one normalized entry
// range and stitches the fragments into the final array.
//
// Baskets are fetched by the source's own workers; each arrival is
// handed to the decompression executor (decompress + parse) and then to
// the interpretation executor (BasketArray). The driving goroutine
// consumes stage notifications until every basket has a fragment, then
// builds the final array itself. The first error aborts the request;
// stragglers settle into the buffered event channel and are dropped.
func (b *Branch) readRange(ctx context.Context, ip interp.Interpretation, start, stop int64, decomp, interpExec futures.Executor, lib interp.Library) (any, error) {
	units := b.entriesToRangesOrBaskets(start, stop)
	if len(units) == 0 {
		return ip.FinalArray(nil, start, stop, []int64{start}, lib)
	}

	fragments := make([]interp.Fragment, len(units))
	remaining := len(units)
	if m := metrics.Get(); m != nil {
		m.InFlightBaskets.Add(float64(len(units)))
		defer func() { m.InFlightBaskets.Sub(float64(remaining)) }()
	}

	// Each unit sends at most three events, so no send ever blocks,
	// even after an abort.
	events := make(chan pipelineEvent, 3*len(units))

	var ranges []source.Range
	rangeUnit := make(map[source.Range]int)
	for i, u := range units {
		if u.basket != nil {
			events <- pipelineEvent{unit: i, stage: stageParsed}
			continue
		}
		ranges = append(ranges, u.rng)
		rangeUnit[u.rng] = i
	}
	fetchStart := time.Now()
	if len(ranges) > 0 {
		_, err := b.tree.file.src.Chunks(ranges, func(c *source.Chunk) {
			events <- pipelineEvent{unit: rangeUnit[c.Range], stage: stageFetched, chunk: c}
		})
		if err != nil {
			if m := metrics.Get(); m != nil {
				m.SourceErrors.WithLabelValues(b.tree.file.srcType).Inc()
			}
			return nil, err
		}
	}

	for remaining > 0 {
		var ev pipelineEvent
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev = <-events:
		}
		if ev.err != nil {
			if m := metrics.Get(); m != nil {
				m.BasketsFailed.WithLabelValues(b.tree.path, b.info.Name).Inc()
			}
			return nil, ev.err
		}

		switch ev.stage {
		case stageFetched:
			i := ev.unit
			units[i].chunk = ev.chunk
			if m := metrics.Get(); m != nil {
				m.BasketsFetched.WithLabelValues(b.tree.path, b.info.Name).Inc()
				m.BytesRead.WithLabelValues(b.tree.path).Add(float64(ev.chunk.Len()))
				m.FetchDuration.WithLabelValues(b.tree.path).Observe(time.Since(fetchStart).Seconds())
			}
			decomp.Submit(func() (any, error) {
				u := units[i]
				raw, err := u.chunk.Raw(ctx)
				if err != nil {
					if m := metrics.Get(); m != nil {
						m.SourceErrors.WithLabelValues(b.tree.file.srcType).Inc()
					}
					events <- pipelineEvent{unit: i, err: err}
					return nil, err
				}
				began := time.Now()
				bk, err := b.parseBasket(u.basketNum, raw, b.tree.file.decoder)
				if err != nil {
					events <- pipelineEvent{unit: i, err: err}
					return nil, err
				}
				if m := metrics.Get(); m != nil {
					m.DecodeDuration.WithLabelValues(b.tree.path).Observe(time.Since(began).Seconds())
					m.BytesDecompressed.WithLabelValues(b.tree.path).Add(float64(len(bk.Data)))
				}
				u.basket = bk
				b.storeBasket(bk)
				events <- pipelineEvent{unit: i, stage: stageParsed}
				return bk, nil
			})
			reportQueueDepth(decomp)

		case stageParsed:
			i := ev.unit
			interpExec.Submit(func() (any, error) {
				u := units[i]
				frag, err := ip.BasketArray(u.basket.Data, u.basket.ByteOffsets, interp.BasketContext{
					FilePath:     b.tree.file.path,
					ObjectPath:   b.tree.path,
					BranchName:   b.info.Name,
					BasketNumber: u.basketNum,
				})
				if err != nil {
					events <- pipelineEvent{unit: i, err: err}
					return nil, err
				}
				fragments[i] = frag
				events <- pipelineEvent{unit: i, stage: stageDone}
				return frag, nil
			})

		case stageDone:
			if m := metrics.Get(); m != nil {
				m.BasketsDecoded.WithLabelValues(b.tree.path, b.info.Name).Inc()
				m.InFlightBaskets.Dec()
			}
			reportQueueDepth(decomp)
			remaining--
		}
	}

	first := units[0].basketNum
	last := units[len(units)-1].basketNum
	entryOffsets := b.info.EntryOffsets[first : last+2]
	return ip.FinalArray(fragments, start, stop, entryOffsets, lib)
}

// Arrays reads several branches of the tree concurrently, one array
// request per branch. The first failure cancels the rest; on error no
// partial result map is returned.
func (t *Tree) Arrays(ctx context.Context, interps map[string]interp.Interpretation, opts ArrayOptions) (map[string]any, error) {
	// One correlation ID covers every branch of the request.
	if logging.CorrelationID(ctx) == "" {
		ctx = logging.WithCorrelationID(ctx, logging.GenerateCorrelationID())
	}

	names := make([]string, 0, len(interps))
	for name := range interps {
		if _, err := t.Branch(name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]any, len(names))
	eg, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		branch := t.names[name]
		eg.Go(func() error {
			v, err := branch.Array(ctx, interps[name], opts)
			if err != nil {
				return fmt.Errorf("branch %q: %w", name, err)
			}
			results[i] = v
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out, nil
}

// arrayBytes estimates the in-memory size of a materialized array for
// cache accounting.
func arrayBytes(v any) int64 {
	switch x := v.(type) {
	case []int8:
		return int64(len(x))
	case []uint8:
		return int64(len(x))
	case []int16:
		return 2 * int64(len(x))
	case []uint16:
		return 2 * int64(len(x))
	case []int32:
		return 4 * int64(len(x))
	case []uint32:
		return 4 * int64(len(x))
	case []float32:
		return 4 * int64(len(x))
	case []int64:
		return 8 * int64(len(x))
	case []uint64:
		return 8 * int64(len(x))
	case []float64:
		return 8 * int64(len(x))
	case map[string]any:
		var total int64
		for _, col := range x {
			total += arrayBytes(col)
		}
		return total
	case interp.Record:
		var total int64
		for _, col := range x.Columns {
			total += arrayBytes(col)
		}
		return total
	default:
		return 0
	}
}

package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/SupperZum/iavl"
	"github.com/SupperZum/iavl/db"
)

// changesetGenerator produces deterministic per-version batches of
// create/update/delete operations from a seed, so two bench runs with the
// same parameters build byte-identical trees.
type changesetGenerator struct {
	seed             int64
	keyMean          int
	keyStdDev        int
	valueMean        int
	valueStdDev      int
	initialSize      int
	changePerVersion int
	deleteFraction   float64
}

type changesetOp struct {
	key    []byte
	value  []byte
	delete bool
}

type changesetItr struct {
	gen     changesetGenerator
	rand    *rand.Rand
	keys    [][]byte
	version uint32
}

func (g changesetGenerator) iterator() *changesetItr {
	return &changesetItr{
		gen:  g,
		rand: rand.New(rand.NewSource(g.seed)),
	}
}

func (itr *changesetItr) genBytes(mean, stdDev int) []byte {
	length := int(itr.rand.NormFloat64()*float64(stdDev) + float64(mean))
	// mean - stddev can go negative on skewed parameters; retry near the
	// mean rather than clamping, which would pile lengths up at 1.
	if length < 1 {
		length = int(itr.rand.NormFloat64()*float64(mean/3) + float64(mean))
		if length < 1 {
			length = 1
		}
	}
	b := make([]byte, length)
	itr.rand.Read(b)
	return b
}

func (itr *changesetItr) create() changesetOp {
	op := changesetOp{
		key:   itr.genBytes(itr.gen.keyMean, itr.gen.keyStdDev),
		value: itr.genBytes(itr.gen.valueMean, itr.gen.valueStdDev),
	}
	itr.keys = append(itr.keys, op.key)
	return op
}

func (itr *changesetItr) next() []changesetOp {
	itr.version++

	if itr.version == 1 {
		ops := make([]changesetOp, 0, itr.gen.initialSize)
		for i := 0; i < itr.gen.initialSize; i++ {
			ops = append(ops, itr.create())
		}
		return ops
	}

	deletes := int(itr.gen.deleteFraction * float64(itr.gen.changePerVersion))
	if deletes >= len(itr.keys) {
		deletes = 0
	}
	updates := itr.gen.changePerVersion - deletes

	ops := make([]changesetOp, 0, itr.gen.changePerVersion+deletes)
	for i := 0; i < deletes; i++ {
		j := itr.rand.Intn(len(itr.keys))
		ops = append(ops, changesetOp{key: itr.keys[j], delete: true})
		itr.keys[j] = itr.keys[len(itr.keys)-1]
		itr.keys = itr.keys[:len(itr.keys)-1]
	}
	for i := 0; i < updates; i++ {
		j := itr.rand.Intn(len(itr.keys))
		ops = append(ops, changesetOp{
			key:   itr.keys[j],
			value: itr.genBytes(itr.gen.valueMean, itr.gen.valueStdDev),
		})
	}
	// replace deleted keys so the tree holds its size
	for i := 0; i < deletes; i++ {
		ops = append(ops, itr.create())
	}

	itr.rand.Shuffle(len(ops), func(i, j int) {
		ops[i], ops[j] = ops[j], ops[i]
	})
	return ops
}

func benchCommand(ctx *cliContext) *cobra.Command {
	gen := changesetGenerator{
		keyMean:     16,
		keyStdDev:   6,
		valueMean:   32,
		valueStdDev: 12,
	}
	var (
		versions    int
		inMemory    bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Build a tree from generated changesets and report throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			var database db.DB
			if inMemory {
				database = db.NewMemDB()
			} else {
				var closer func()
				var err error
				database, closer, err = ctx.openDB()
				if err != nil {
					return err
				}
				defer closer()
			}

			tree, err := iavl.New(database, iavl.Options{
				CacheSize: ctx.cfg.CacheSize,
				Logger:    ctx.logger,
			})
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			metricLeafCount := promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "iavl_bench_leaf_count",
				Help: "number of leaf operations applied to the tree",
			})
			metricVersion := promauto.With(registry).NewGauge(prometheus.GaugeOpts{
				Name: "iavl_bench_version",
				Help: "last saved tree version",
			})

			addr := metricsAddr
			if addr == "" {
				addr = ctx.cfg.MetricsAddr
			}
			if addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
				go func() {
					ctx.logger.Info("serving metrics", "addr", addr)
					if err := http.ListenAndServe(addr, mux); err != nil {
						ctx.logger.Error("metrics server failed", "err", err)
					}
				}()
			}

			itr := gen.iterator()
			cnt := 0
			window := 0
			since := time.Now()
			start := since

			for v := 0; v < versions; v++ {
				for _, op := range itr.next() {
					cnt++
					window++
					if window == 100_000 {
						ctx.logger.Info(fmt.Sprintf("processed %s leaves; %s leaves/s",
							humanize.Comma(int64(cnt)),
							humanize.Comma(int64(float64(window)/time.Since(since).Seconds()))))
						window = 0
						since = time.Now()
					}
					metricLeafCount.Inc()

					if op.delete {
						if tree.Remove(op.key) == nil {
							return fmt.Errorf("failed to remove key %x at version %d", op.key, itr.version)
						}
					} else {
						tree.Set(op.key, op.value)
					}
				}

				_, version, err := tree.SaveVersion()
				if err != nil {
					return err
				}
				metricVersion.Set(float64(version))
			}

			stats := tree.NodeDB().Stats()
			ctx.logger.Info("bench complete",
				"versions", versions,
				"leaves", cnt,
				"root", fmt.Sprintf("%X", tree.RootHash()),
				"nodes_saved", stats.NodesSaved,
				"bytes_saved", humanize.Bytes(uint64(stats.BytesSaved)),
				"cache_hits", stats.CacheHits,
				"cache_misses", stats.CacheMisses,
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
			return nil
		},
	}
	cmd.Flags().Int64Var(&gen.seed, "seed", 42, "Seed for the changeset generator.")
	cmd.Flags().IntVar(&gen.initialSize, "initial-size", 100_000, "Leaves created at version 1.")
	cmd.Flags().IntVar(&gen.changePerVersion, "change-per-version", 1_000, "Operations per subsequent version.")
	cmd.Flags().Float64Var(&gen.deleteFraction, "delete-fraction", 0.1, "Fraction of per-version operations that are deletes.")
	cmd.Flags().IntVar(&versions, "versions", 10, "Number of versions to build and save.")
	cmd.Flags().BoolVar(&inMemory, "memory", false, "Use an in-memory database instead of --db.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address.")
	return cmd
}

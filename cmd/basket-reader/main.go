package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/withObsrvr/obsrvr-basket-reader/internal/compress"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/config"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/export"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/futures"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/interp"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/logging"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/metrics"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/rtree"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/source"
	"github.com/withObsrvr/obsrvr-basket-reader/internal/tables"
)

// Set at build time via -ldflags.
var (
	Version = "dev"
	GitSHA  = ""
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level})
	log := logging.Component("main")
	log.Info("basket reader starting", "version", Version, "git_sha", GitSHA)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Info("received signal", "signal", sig.String())
		cancel()
	}()

	if cfg.Metrics.Enabled {
		metrics.Init(cfg.Metrics.Namespace)
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	if err := run(ctx, cfg, log); err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown complete")
			return
		}
		log.Error("read failed", "error", err)
		os.Exit(1)
	}
	log.Info("done")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	var (
		src  source.Source
		name string
		err  error
	)
	if cfg.File.BucketURL != "" {
		name = cfg.File.BucketURL + "/" + cfg.File.BucketKey
		src, err = source.NewBlobSource(ctx, cfg.File.BucketURL, cfg.File.BucketKey, cfg.Perf.SourceWorkers)
	} else {
		name = cfg.File.Path
		src, err = source.NewMultithreadedFileSource(cfg.File.Path, cfg.Perf.SourceWorkers)
	}
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}

	meta, err := config.LoadTreeMeta(cfg.File.Metadata)
	if err != nil {
		src.Close()
		return err
	}
	infos, err := branchInfos(meta)
	if err != nil {
		src.Close()
		return err
	}

	file, err := rtree.NewFile(name, src, rtree.FileOptions{
		ObjectCacheItems: cfg.Perf.ObjectCacheItems,
		ArrayCacheBytes:  cfg.Perf.ArrayCacheBytes,
	})
	if err != nil {
		src.Close()
		return err
	}
	defer file.Close()

	tree, err := file.Tree(meta.Object, meta.Cycle, infos)
	if err != nil {
		return err
	}

	names := cfg.Read.Branches
	if len(names) == 0 {
		for _, b := range tree.Branches() {
			names = append(names, b.Name())
		}
	}
	interps := make(map[string]interp.Interpretation, len(names))
	for _, branchName := range names {
		b, err := tree.Branch(branchName)
		if err != nil {
			return err
		}
		ip, err := interp.NewAsDtype(b.Dtype().String())
		if err != nil {
			return err
		}
		interps[branchName] = ip
	}

	decomp := futures.NewThreadPool(cfg.Perf.DecompressionWorkers)
	defer decomp.Shutdown()
	interpExec := futures.NewThreadPool(cfg.Perf.InterpretationWorkers)
	defer interpExec.Shutdown()

	began := time.Now()
	arrays, err := tree.Arrays(ctx, interps, rtree.ArrayOptions{
		EntryStart:             cfg.Read.EntryStart,
		EntryStop:              cfg.Read.EntryStop,
		DecompressionExecutor:  decomp,
		InterpretationExecutor: interpExec,
		Library:                cfg.Read.Library,
	})
	if err != nil {
		return err
	}

	start, stop := rtree.NormalizeEntries(cfg.Read.EntryStart, cfg.Read.EntryStop, tree.NumEntries())
	log.Info("arrays materialized",
		"object", tree.Path(),
		"branches", len(arrays),
		"entry_start", start,
		"entry_stop", stop,
		"elapsed", time.Since(began).String(),
	)

	switch cfg.Output.Format {
	case "parquet":
		return dumpParquet(tree, names, arrays, start, stop, cfg.Output, log)
	default:
		return dumpJSON(arrays)
	}
}

// branchInfos converts the metadata sidecar to branch descriptions.
func branchInfos(meta *config.TreeMeta) ([]rtree.BranchInfo, error) {
	infos := make([]rtree.BranchInfo, 0, len(meta.Branches))
	for _, bm := range meta.Branches {
		info := rtree.BranchInfo{
			Name:         bm.Name,
			TypeID:       bm.TypeID,
			Dtype:        bm.Dtype,
			EntryOffsets: bm.EntryOffsets,
		}
		for _, bk := range bm.Baskets {
			codec, err := compress.ParseCodec(bk.Codec)
			if err != nil {
				return nil, fmt.Errorf("branch %q: %w", bm.Name, err)
			}
			info.Baskets = append(info.Baskets, rtree.BasketInfo{
				ByteStart:         bk.ByteStart,
				ByteStop:          bk.ByteStop,
				Codec:             codec,
				UncompressedBytes: bk.UncompressedBytes,
				DataBytes:         bk.DataBytes,
			})
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func dumpJSON(arrays map[string]any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(arrays)
}

func dumpParquet(tree *rtree.Tree, names []string, arrays map[string]any, start, stop int64, out config.OutputConfig, log *slog.Logger) error {
	cols := make([]tables.Column, 0, len(names))
	for _, branchName := range names {
		b, err := tree.Branch(branchName)
		if err != nil {
			return err
		}
		cols = append(cols, tables.Column{Name: branchName, Dtype: b.Dtype()})
	}

	var buf bytes.Buffer
	rows, err := tables.WriteTable(&buf, out.Table, cols, arrays, start)
	if err != nil {
		return err
	}

	exporter, err := export.NewLocalExporter(out.Dir)
	if err != nil {
		return err
	}
	fileName := out.Table + ".parquet"
	path, err := exporter.WriteFile(fileName, buf.Bytes())
	if err != nil {
		return err
	}

	manifest := &export.Manifest{
		File:       tree.CacheKey(),
		Object:     tree.Path(),
		EntryStart: start,
		EntryStop:  stop,
		Tables: map[string]export.TableInfo{
			out.Table: {
				File:     fileName,
				Checksum: tables.ComputeChecksum(buf.Bytes()),
				RowCount: rows,
				ByteSize: int64(buf.Len()),
			},
		},
		Producer:  export.ProducerInfo{Name: "basket-reader", Version: Version, GitSHA: GitSHA},
		CreatedAt: time.Now().UTC(),
	}
	if err := exporter.WriteManifest(manifest); err != nil {
		return err
	}

	log.Info("parquet written", "path", path, "rows", rows, "bytes", buf.Len())
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"github.com/titisda/trading-algorithum/internal/bus"
	"github.com/titisda/trading-algorithum/internal/engine"
	"github.com/titisda/trading-algorithum/internal/feed"
	"github.com/titisda/trading-algorithum/internal/ops"
)

type emptyLogger struct{}

func (emptyLogger) Infof(string, ...any)  {}
func (emptyLogger) Debugf(string, ...any) {}
func (emptyLogger) Errorf(string, ...any) {}

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	quiet := flag.Bool("quiet", false, "Suppress per-slice output")
	profileAddr := flag.String("profile-addr", "", "Pyroscope server address (empty=disabled)")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("missing -config")
	}

	if *profileAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "feed/backtest",
			ServerAddress:   *profileAddr,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if err := run(context.Background(), loaded, *quiet); err != nil {
		log.Fatalf("backtest failed: %v", err)
	}
}

func run(ctx context.Context, loaded ops.Loaded, quiet bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := engine.New(ctx, loaded)
	if err != nil {
		return err
	}
	defer s.Close()

	go s.Events().Run(ctx, func(e bus.Event) {
		switch e.Level {
		case bus.LevelFatal, bus.LevelError:
			logs.Errorf("security %d: %s: %+v", e.SecurityID, e.Message, e.Err)
		default:
			logs.Infof("security %d: %s", e.SecurityID, e.Message)
		}
	})

	go func() {
		<-sys.Shutdown()
		cancel()
	}()

	var buf []byte
	count := 0
	err = s.Run(ctx, func(sl feed.Slice) error {
		count++
		if quiet {
			return nil
		}
		buf = printSlice(buf[:0], loaded, sl)
		_, werr := os.Stdout.Write(buf)
		return werr
	})
	if err != nil {
		return err
	}

	snap := s.Metrics().Snapshot()
	fmt.Printf("slices=%d read=%d synthesized=%d dropped=%d errors=%d\n",
		count, snap.RecordsRead, snap.RecordsSynthesized, snap.RecordsDropped, snap.SubscriptionErrors)
	return nil
}

func printSlice(buf []byte, loaded ops.Loaded, sl feed.Slice) []byte {
	buf = sl.Time.UTC().AppendFormat(buf, "2006-01-02T15:04:05Z")
	buf = append(buf, '\n')
	for _, id := range sl.Securities() {
		sec, ok := loaded.Registry.Security(id)
		if !ok {
			continue
		}
		for _, rec := range sl.Records(id) {
			buf = append(buf, "  "...)
			buf = append(buf, sec.Ticker...)
			buf = append(buf, ' ')
			buf = rec.AppendSummary(buf, sec.PriceScale, sec.QuantityScale)
			buf = append(buf, '\n')
		}
	}
	return buf
}

// Package engine assembles a configured query into a running feed
// session: one producer and subscription per request, merged by a
// synchronizer, with errors routed to the side channel.
package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"

	"github.com/titisda/trading-algorithum/internal/barlog"
	"github.com/titisda/trading-algorithum/internal/bus"
	"github.com/titisda/trading-algorithum/internal/feed"
	"github.com/titisda/trading-algorithum/internal/obs"
	"github.com/titisda/trading-algorithum/internal/ops"
	"github.com/titisda/trading-algorithum/internal/schema"
	"github.com/titisda/trading-algorithum/internal/source"
	"github.com/titisda/trading-algorithum/internal/tz"
	"github.com/titisda/trading-algorithum/pkg/conn"
)

// producerPad widens producer query bounds past the subscription window
// so lookahead stages can peek at spill-over records. The window filter
// clips exactly downstream.
const producerPad = 48 * time.Hour

// Session is one end-to-end feed run. It is not safe for concurrent use;
// a single consumer drives Next or Run.
type Session struct {
	id      uuid.UUID
	cfg     ops.Loaded
	events  *bus.Queue
	metrics *obs.Metrics
	merge   *feed.Synchronizer
	pg      *conn.Client
}

// New builds every subscription in the loaded config and wires them into
// a synchronizer. Construction is parallel; the first failure aborts and
// releases everything already built.
func New(ctx context.Context, cfg ops.Loaded) (*Session, error) {
	s := &Session{
		id:      uuid.New(),
		cfg:     cfg,
		events:  bus.NewQueue(cfg.QueueSize),
		metrics: obs.NewMetrics(),
	}

	if cfg.Source.Type == ops.SourcePostgres {
		client, err := conn.New(conn.Option{
			Host:     cfg.Source.Postgres.Host,
			Port:     cfg.Source.Postgres.Port,
			User:     cfg.Source.Postgres.User,
			Password: cfg.Source.Postgres.Password,
			Database: cfg.Source.Postgres.Database,
			SSLMode:  cfg.Source.Postgres.SSLMode,
		})
		if err != nil {
			return nil, errors.Wrap(err, "connect bars database")
		}
		s.pg = client
	}

	subs := make([]*feed.Subscription, len(cfg.Subscriptions))
	g, _ := errgroup.WithContext(ctx)
	for i, sc := range cfg.Subscriptions {
		g.Go(func() error {
			producer, err := s.buildProducer(sc)
			if err != nil {
				return err
			}
			sub, err := feed.NewSubscription(sc.Feed, producer, sc.Session, s.events, s.metrics)
			if err != nil {
				producer.Close()
				return errors.Wrap(err, "build subscription").With("ticker", sc.Feed.Security.Ticker)
			}
			subs[i] = sub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, sub := range subs {
			if sub != nil {
				sub.Close()
			}
		}
		if s.pg != nil {
			s.pg.Close()
		}
		return nil, err
	}

	s.merge = feed.NewSynchronizer(s.metrics, subs...)
	logs.Infof("session %s: %d subscriptions over [%s, %s]",
		s.id, len(subs), cfg.StartUTC.Format(time.RFC3339), cfg.EndUTC.Format(time.RFC3339))
	return s, nil
}

// buildProducer creates the record source for one subscription based on
// the configured source type. Producer bounds are exchange-local and
// padded; exact clipping happens in the pipeline.
func (s *Session) buildProducer(sc ops.Subscription) (feed.Source, error) {
	sec := sc.Feed.Security
	startLocal, endLocal, err := localBounds(sec, s.cfg.StartUTC, s.cfg.EndUTC)
	if err != nil {
		return nil, err
	}

	switch s.cfg.Source.Type {
	case ops.SourceBarLog:
		log, err := barlog.Open(s.cfg.Source.Path, sec.ID,
			startLocal.Add(-producerPad), endLocal.Add(producerPad), barlog.ReaderOptions{})
		if err != nil {
			return nil, err
		}
		return log, nil
	case ops.SourcePostgres:
		return source.NewPostgres(s.pg.DB(), sec.ID,
			startLocal.Add(-producerPad), endLocal.Add(producerPad)), nil
	case ops.SourceSynthetic:
		gen, err := source.NewGenerator(source.GeneratorConfig{
			SecurityID: sec.ID,
			Kind:       sc.Feed.Kind,
			Resolution: sc.Feed.Resolution,
			Start:      startLocal,
			End:        endLocal,
			BasePrice:  sc.SyntheticBasePrice,
			Amplitude:  sc.SyntheticAmplitude,
			Spread:     sc.SyntheticSpread,
			BaseSize:   sc.SyntheticBaseSize,
		})
		if err != nil {
			return nil, err
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unknown source type: %q", s.cfg.Source.Type)
	}
}

func localBounds(sec schema.Security, startUTC, endUTC time.Time) (time.Time, time.Time, error) {
	loc, err := time.LoadLocation(sec.ExchangeTZ)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "load exchange time zone").With("tz", sec.ExchangeTZ)
	}
	offsets, err := tz.NewOffsetIndex(loc, startUTC, endUTC)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "build offset index")
	}
	return offsets.UTCToLocal(startUTC), offsets.UTCToLocal(endUTC), nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Events returns the side channel carrying per-subscription failures.
func (s *Session) Events() *bus.Queue {
	return s.events
}

// Metrics returns the session counters.
func (s *Session) Metrics() *obs.Metrics {
	return s.metrics
}

// Next returns the slice at the next frontier, io.EOF at the end.
func (s *Session) Next() (feed.Slice, error) {
	return s.merge.Next()
}

// Run drives the merge to completion, invoking handler per slice. It
// stops early when the context is canceled or the handler fails.
func (s *Session) Run(ctx context.Context, handler func(feed.Slice) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		slice, err := s.merge.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := handler(slice); err != nil {
			return err
		}
	}
}

// Close releases every subscription and the database pool, then closes
// the side channel. Safe to call more than once.
func (s *Session) Close() error {
	err := s.merge.Close()
	if s.pg != nil {
		if cerr := s.pg.Close(); err == nil {
			err = cerr
		}
	}
	s.events.Close()
	snap := s.metrics.Snapshot()
	logs.Infof("session %s closed: read=%d synthesized=%d dropped=%d slices=%d errors=%d",
		s.id, snap.RecordsRead, snap.RecordsSynthesized, snap.RecordsDropped,
		snap.SlicesEmitted, snap.SubscriptionErrors)
	return err
}

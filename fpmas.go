// Package fpmas ties the distributed graph substrate together: it wires a
// Communicator, a DistributedGraph, and one of the three sync modes into a
// single Environment, and brackets process-wide setup and teardown per
// spec §6.
package fpmas

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/comm/grpctransport"
	"github.com/fpmas-go/fpmas/comm/localtransport"
	"github.com/fpmas-go/fpmas/dgraph"
	"github.com/fpmas-go/fpmas/internal/logging"
	"github.com/fpmas-go/fpmas/location"
	"github.com/fpmas-go/fpmas/syncmode"
	"github.com/fpmas-go/fpmas/syncmode/ghost"
	"github.com/fpmas-go/fpmas/syncmode/hard"

	"go.opentelemetry.io/otel/trace"
)

// SyncMode selects which of the three canonical sync modes (spec §4.7) an
// Environment runs under.
type SyncMode uint8

const (
	Ghost SyncMode = iota
	GlobalGhost
	Hard
)

// ParseSyncMode converts the string form used in cluster config files
// ("ghost", "global_ghost", "hard") into a SyncMode.
func ParseSyncMode(s string) (SyncMode, error) {
	switch s {
	case "ghost":
		return Ghost, nil
	case "global_ghost":
		return GlobalGhost, nil
	case "hard":
		return Hard, nil
	default:
		return 0, fmt.Errorf("fpmas: unrecognized sync mode %q", s)
	}
}

func (m SyncMode) String() string {
	switch m {
	case Ghost:
		return "ghost"
	case GlobalGhost:
		return "global_ghost"
	case Hard:
		return "hard"
	default:
		return "unknown"
	}
}

// Config configures an Environment.
type Config struct {
	Mode     SyncMode
	LogLevel string
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

// Environment is one rank's process-wide handle: the communicator, the
// location manager, and a DistributedGraph over it. Finalize must be
// called, exactly once, before process exit.
type Environment[T any] struct {
	Comm  comm.Communicator
	Loc   *location.Manager
	Graph *dgraph.DistributedGraph[T]

	hardMode *hard.Mode[T]
	closer   func()
}

// Init brings up the communicator and the distributed graph for one rank
// of an in-process cluster, wired for localtransport. Use InitGRPC for a
// real multi-process deployment.
func Init[T any](rank, size int32, cfg Config) (*Environment[T], error) {
	cluster := localtransport.NewCluster(size)
	return initWith[T](cluster.Rank(rank), rank, size, cfg, func() {})
}

// InitGRPC brings up the communicator and the distributed graph for one
// rank of a real multi-process deployment, connecting to peers over gRPC.
func InitGRPC[T any](rank, size int32, listenAddr string, peers grpctransport.Peers, cfg Config) (*Environment[T], error) {
	c, err := grpctransport.Dial(rank, size, listenAddr, peers, grpctransport.Options{
		Tracer: cfg.Tracer,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return initWith[T](c, rank, size, cfg, func() { _ = c.Close() })
}

func initWith[T any](c comm.Communicator, rank, size int32, cfg Config, closer func()) (*Environment[T], error) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = logging.LevelInfo
	}
	if err := logging.Configure(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("fpmas: configure logging: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.WithRank(rank)
	}

	g := dgraph.New[T](rank, size, c, dgraph.Options{Logger: cfg.Logger, Tracer: cfg.Tracer})
	epochFn := g.Epoch

	env := &Environment[T]{Comm: c, Loc: g.Location(), Graph: g, closer: closer}

	var mode syncmode.Mode[T]
	switch cfg.Mode {
	case Ghost:
		mode = ghost.New[T](rank, c, g.Location(), g, epochFn)
	case GlobalGhost:
		mode = ghost.NewGlobal[T](rank, c, g.Location(), g, epochFn)
	case Hard:
		hm := hard.New[T](rank, c, epochFn, g, g.LocalValue, g.SetLocalValue)
		env.hardMode = hm
		mode = hm.Mode
	default:
		return nil, fmt.Errorf("fpmas: unsupported sync mode %v", cfg.Mode)
	}
	g.SetMode(mode)

	return env, nil
}

// Finalize tears down the communicator. All per-process state derived
// from this Environment must be dropped before calling it.
func (e *Environment[T]) Finalize() {
	e.closer()
}

// Synchronize is a convenience forward to the underlying graph's full
// barrier round.
func (e *Environment[T]) Synchronize(ctx context.Context) error {
	return e.Graph.Synchronize(ctx)
}

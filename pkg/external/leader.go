package external

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// RaftElectorConfig configures a RaftElector (spec.md section 6, "Leader
// Election"). Grounded on the teacher's pkg/manager.Manager.Bootstrap,
// adapted from a manager replicating cluster state through Raft to a
// deployment core that uses Raft purely for leadership, carrying no log
// entries of its own.
type RaftElectorConfig struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// noopFSM satisfies raft.FSM without replicating any application state:
// this core's authoritative state lives in the Tracker and the
// Repository, not in the Raft log (see pkg/tracker's package doc).
type noopFSM struct{}

func (noopFSM) Apply(*raft.Log) any                         { return nil }
func (noopFSM) Snapshot() (raft.FSMSnapshot, error)         { return noopSnapshot{}, nil }
func (noopFSM) Restore(rc io.ReadCloser) error              { return rc.Close() }

type noopSnapshot struct{}

func (noopSnapshot) Persist(sink raft.SnapshotSink) error { return sink.Close() }
func (noopSnapshot) Release()                             {}

// RaftElector implements LeaderElector over a single-node-bootstrapped (or
// joined) Raft cluster.
type RaftElector struct {
	r *raft.Raft

	mu       sync.Mutex
	lostCh   chan struct{}
	lostOnce sync.Once
}

// NewRaftElector bootstraps a fresh single-node Raft cluster at cfg and
// returns a RaftElector tracking its leadership. Joining an existing
// cluster is the operator's responsibility via raft.AddVoter against the
// current leader, out of scope for this constructor.
func NewRaftElector(cfg RaftElectorConfig) (*RaftElector, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("leader elector: create data dir: %w", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	raftCfg.HeartbeatTimeout = 500 * time.Millisecond
	raftCfg.ElectionTimeout = 500 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("leader elector: resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("leader elector: create transport: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("leader elector: create snapshot store: %w", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("leader elector: create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("leader elector: create stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, noopFSM{}, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("leader elector: create raft: %w", err)
	}

	bootstrapped := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
	})
	if err := bootstrapped.Error(); err != nil && err != raft.ErrCantBootstrap {
		return nil, fmt.Errorf("leader elector: bootstrap cluster: %w", err)
	}

	e := &RaftElector{r: r, lostCh: make(chan struct{})}
	go e.watchLeadership()
	return e, nil
}

// IsLeader reports whether this node currently holds leadership.
func (e *RaftElector) IsLeader() bool {
	return e.r.State() == raft.Leader
}

// LeadershipLost returns a channel that fires once, the first time this
// node transitions away from leadership after having held it.
func (e *RaftElector) LeadershipLost() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lostCh
}

func (e *RaftElector) watchLeadership() {
	obsCh := make(chan raft.Observation, 8)
	observer := raft.NewObserver(obsCh, true, func(o *raft.Observation) bool {
		_, ok := o.Data.(raft.LeaderObservation)
		return ok
	})
	e.r.RegisterObserver(observer)
	defer e.r.DeregisterObserver(observer)

	wasLeader := e.IsLeader()
	for obs := range obsCh {
		if _, ok := obs.Data.(raft.LeaderObservation); !ok {
			continue
		}
		isLeader := e.IsLeader()
		if wasLeader && !isLeader {
			e.lostOnce.Do(func() { close(e.lostCh) })
		}
		wasLeader = isLeader
	}
}

// Shutdown releases the underlying Raft instance's resources.
func (e *RaftElector) Shutdown() error {
	return e.r.Shutdown().Error()
}

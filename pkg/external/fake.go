package external

import (
	"context"
	"sync"

	"github.com/steward-sh/steward/pkg/matcher"
)

// FakeResourceManager is an in-memory ResourceManager for tests, recording
// every Launch/Kill/Reconcile/Acknowledge call and letting the test drive
// offers and status updates directly.
type FakeResourceManager struct {
	mu sync.Mutex

	offers  chan matcher.Offer
	updates chan StatusUpdate

	Launched     []LaunchTask
	Killed       []string
	Reconciled   [][]string
	Acknowledged []StatusUpdate

	KillErr error
}

// NewFakeResourceManager returns a ready-to-use fake.
func NewFakeResourceManager() *FakeResourceManager {
	return &FakeResourceManager{
		offers:  make(chan matcher.Offer, 64),
		updates: make(chan StatusUpdate, 64),
	}
}

func (f *FakeResourceManager) Offers(ctx context.Context) (<-chan matcher.Offer, error) {
	return f.offers, nil
}

// PushOffer makes offer available to the next Offers consumer.
func (f *FakeResourceManager) PushOffer(offer matcher.Offer) { f.offers <- offer }

// PushStatusUpdate delivers update to the next StatusUpdates consumer.
func (f *FakeResourceManager) PushStatusUpdate(update StatusUpdate) { f.updates <- update }

func (f *FakeResourceManager) Launch(ctx context.Context, offerID string, tasks []LaunchTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Launched = append(f.Launched, tasks...)
	return nil
}

func (f *FakeResourceManager) Kill(ctx context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.KillErr != nil {
		return f.KillErr
	}
	f.Killed = append(f.Killed, taskID)
	return nil
}

func (f *FakeResourceManager) Reconcile(ctx context.Context, taskIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reconciled = append(f.Reconciled, taskIDs)
	return nil
}

func (f *FakeResourceManager) Acknowledge(ctx context.Context, update StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Acknowledged = append(f.Acknowledged, update)
	return nil
}

func (f *FakeResourceManager) StatusUpdates() <-chan StatusUpdate { return f.updates }

// FakeLeaderElector is a settable LeaderElector for tests.
type FakeLeaderElector struct {
	mu     sync.Mutex
	leader bool
	lostCh chan struct{}
}

// NewFakeLeaderElector returns a fake that starts as leader.
func NewFakeLeaderElector() *FakeLeaderElector {
	return &FakeLeaderElector{leader: true, lostCh: make(chan struct{})}
}

func (f *FakeLeaderElector) IsLeader() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leader
}

func (f *FakeLeaderElector) LeadershipLost() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lostCh
}

// ResignLeadership flips the fake to non-leader and fires LeadershipLost.
func (f *FakeLeaderElector) ResignLeadership() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.leader {
		f.leader = false
		close(f.lostCh)
	}
}

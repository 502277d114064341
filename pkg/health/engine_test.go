package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/steward-sh/steward/pkg/events"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/store"
	"github.com/steward-sh/steward/pkg/tracker"
	"github.com/steward-sh/steward/pkg/types"
)

func hostPort(t *testing.T, addr string) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi: %v", err)
	}
	return port
}

func TestStatusUpdateFlipsHealthyAtThreshold(t *testing.T) {
	st := NewStatus(time.Now())
	now := time.Now()

	for i := 0; i < 2; i++ {
		st.Update(Result{Healthy: false, CheckedAt: now}, 3, false)
		if !st.Healthy {
			t.Fatalf("expected still healthy after %d failures", i+1)
		}
	}
	changed := st.Update(Result{Healthy: false, CheckedAt: now}, 3, false)
	if st.Healthy {
		t.Fatalf("expected unhealthy after 3rd consecutive failure")
	}
	if !changed {
		t.Fatalf("expected Update to report a health-state change")
	}
}

func TestStatusSuppressedFailureDoesNotCount(t *testing.T) {
	st := NewStatus(time.Now())
	now := time.Now()
	for i := 0; i < 5; i++ {
		st.Update(Result{Healthy: false, CheckedAt: now}, 3, true)
	}
	if !st.Healthy {
		t.Fatalf("suppressed failures must never flip Healthy")
	}
	if st.ConsecutiveFailures != 0 {
		t.Fatalf("suppressed failures must not increment the counter, got %d", st.ConsecutiveFailures)
	}
}

func TestShouldFireKillIntentOncePerEpisode(t *testing.T) {
	st := NewStatus(time.Now())
	now := time.Now()
	st.Update(Result{Healthy: false, CheckedAt: now}, 2, false)
	st.Update(Result{Healthy: false, CheckedAt: now}, 2, false)
	if !st.ShouldFireKillIntent(2) {
		t.Fatalf("expected kill intent on crossing the threshold")
	}
	if st.ShouldFireKillIntent(2) {
		t.Fatalf("expected kill intent to fire only once per episode")
	}
	st.Update(Result{Healthy: true, CheckedAt: now}, 2, false)
	st.Update(Result{Healthy: false, CheckedAt: now}, 2, false)
	st.Update(Result{Healthy: false, CheckedAt: now}, 2, false)
	if !st.ShouldFireKillIntent(2) {
		t.Fatalf("expected kill intent to re-arm after a recovery")
	}
}

func TestEngineMarksInstanceReadyAfterHealthyHTTPCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	port := hostPort(t, srv.Listener.Addr().String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := pathid.Clean("/prod/web")
	instID := "inst-1"
	repo := store.NewMemoryStore()
	if err := repo.PutInstance(string(path), &types.Instance{
		ID:          instID,
		RunSpecPath: path,
		Agent:       types.AgentInfo{Host: "127.0.0.1"},
		State:       types.InstanceState{Condition: types.ConditionRunning, Since: time.Now()},
		Tasks: map[string]*types.Task{
			"task-1": {
				ID:         "task-1",
				InstanceID: instID,
				Variant:    types.TaskLaunchedEphemeral,
				Status: types.TaskStatus{
					Condition: types.ConditionRunning,
					Network:   types.NetworkInfo{HostPorts: []int{port}},
				},
			},
		},
	}); err != nil {
		t.Fatalf("PutInstance: %v", err)
	}

	tr := tracker.New(repo, events.NewBroker())
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	rs := &types.RunSpec{
		Path: path,
		Kind: types.KindApplication,
		App: &types.ApplicationSpec{
			Ports: []types.PortDefinition{{Name: "http"}},
			HealthCheck: &types.HealthCheckSpec{
				Protocol:               types.ProtocolHTTP,
				Path:                   "/",
				PortName:               "http",
				IntervalSeconds:        0.05,
				TimeoutSeconds:         1,
				MaxConsecutiveFailures: 3,
			},
		},
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	engine := NewEngine(tr, broker, func(p pathid.Path) (*types.RunSpec, bool) {
		if p == path {
			return rs, true
		}
		return nil, false
	})
	engine.Start(ctx)
	defer engine.Stop()

	engine.reconcile(ctx, instID)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if engine.IsReadyForRollout(instID) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected instance to become ready for rollout")
}

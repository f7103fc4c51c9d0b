package daemon

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dispatchd/dispatchd/internal/apiv1"
	"github.com/dispatchd/dispatchd/internal/claim"
	"github.com/dispatchd/dispatchd/internal/dispatch"
	"github.com/dispatchd/dispatchd/internal/events"
	"github.com/dispatchd/dispatchd/internal/pipeline"
	"github.com/dispatchd/dispatchd/pkg/imaging"
)

// GRPCServer implements apiv1.DaemonServiceServer over the dispatch core,
// the way the teacher's GRPCServer implements DaemonService over its
// JobManager (internal/daemon/grpc.go), adapted from job lifecycle RPCs to
// generation-batch RPCs over Dispatcher/Pipeline/events.Bus.
type GRPCServer struct {
	apiv1.UnimplementedDaemonServiceServer

	dispatcher *dispatch.Dispatcher
	pipeline   *pipeline.Pipeline
	bus        *events.Bus
	session    imaging.Session
	version    string

	mu           sync.RWMutex
	shuttingDown bool
	shutdownCh   chan struct{}
	active       map[string]*claim.Claim
}

// NewGRPCServer constructs a GRPCServer.
func NewGRPCServer(dispatcher *dispatch.Dispatcher, pl *pipeline.Pipeline, bus *events.Bus, session imaging.Session, version string) *GRPCServer {
	return &GRPCServer{
		dispatcher: dispatcher,
		pipeline:   pl,
		bus:        bus,
		session:    session,
		version:    version,
		shutdownCh: make(chan struct{}),
		active:     make(map[string]*claim.Claim),
	}
}

func (s *GRPCServer) isShuttingDown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shuttingDown
}

func (s *GRPCServer) track(batchID string, c *claim.Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[batchID] = c
}

func (s *GRPCServer) untrack(batchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, batchID)
}

// emitTerminalError surfaces a batch's terminal failure on the event bus so
// a WatchJob caller learns why their batch ended rather than just that the
// stream stopped producing images. A CancelledError closes out quietly as
// request.cancelled since the caller asked for that outcome; everything
// else is request.failed carrying the spec's fixed caller-facing string
// when the error kind has one (dispatch.Error.CallerMessage).
func (s *GRPCServer) emitTerminalError(batchID string, err error) {
	if s.bus == nil {
		return
	}
	if dispatch.IsKind(err, dispatch.KindCancelledError) {
		s.bus.Emit(events.NewEvent(events.RequestCancelled).WithRequest(batchID))
		return
	}
	message := err.Error()
	if derr, ok := err.(*dispatch.Error); ok {
		message = derr.CallerMessage()
	}
	s.bus.Emit(events.NewEvent(events.RequestFailed).WithRequest(batchID).WithError(errors.New(message)))
}

// SubmitGeneration starts a Generation Pipeline run in the background and
// returns immediately with the batch id the caller watches via WatchJob.
func (s *GRPCServer) SubmitGeneration(ctx context.Context, req *apiv1.SubmitGenerationRequest) (*apiv1.SubmitGenerationResponse, error) {
	if s.isShuttingDown() {
		return nil, status.Error(codes.Unavailable, "daemon is shutting down")
	}
	if req.Prompt == "" {
		return nil, status.Error(codes.InvalidArgument, "prompt is required")
	}
	if req.NumImages <= 0 {
		req.NumImages = 1
	}

	batchID := uuid.NewString()
	c := claim.New(batchID)
	s.track(batchID, c)

	params := req.Params
	if req.PreferredModel != "" {
		if params == nil {
			params = make(map[string]any, 1)
		}
		params["preferred_model"] = req.PreferredModel
	}

	pipelineReq := pipeline.Request{
		ID:        batchID,
		Prompt:    req.Prompt,
		NumImages: req.NumImages,
		ModelID:   req.ModelID,
		DoNotSave: req.DoNotSave,
		Params:    params,
	}

	go func() {
		defer s.untrack(batchID)
		// Run outlives the request's own RPC context: a submitted batch
		// must keep going after SubmitGeneration returns.
		_, err := s.pipeline.Run(context.Background(), pipelineReq, batchID, c, s.session)
		if err != nil {
			s.emitTerminalError(batchID, err)
		}
	}()

	return &apiv1.SubmitGenerationResponse{BatchID: batchID}, nil
}

// CancelGeneration cancels a tracked in-flight batch.
func (s *GRPCServer) CancelGeneration(ctx context.Context, req *apiv1.CancelGenerationRequest) (*apiv1.CancelGenerationResponse, error) {
	if req.BatchID == "" {
		return nil, status.Error(codes.InvalidArgument, "batch_id is required")
	}

	s.mu.RLock()
	c, ok := s.active[req.BatchID]
	s.mu.RUnlock()
	if !ok {
		return &apiv1.CancelGenerationResponse{Cancelled: false}, nil
	}

	c.Cancel("cancelled via control plane")
	return &apiv1.CancelGenerationResponse{Cancelled: true}, nil
}

// ListWorkers reports every Worker Record currently in the pool.
func (s *GRPCServer) ListWorkers(ctx context.Context, req *apiv1.ListWorkersRequest) (*apiv1.ListWorkersResponse, error) {
	resp := &apiv1.ListWorkersResponse{}
	for _, rec := range s.dispatcher.Records() {
		snap := rec.Snapshot()
		resp.Workers = append(resp.Workers, apiv1.WorkerStatus{
			ID:          snap.ID,
			DriverType:  snap.DriverType,
			Status:      string(snap.Status),
			Outstanding: snap.Outstanding,
			IsShadow:    !snap.IsReal,
		})
	}
	return resp, nil
}

// WatchJob streams events tagged with req.BatchID (or every event, if
// BatchID is empty) from req.FromSequence onward until the client
// disconnects or the daemon shuts down.
func (s *GRPCServer) WatchJob(req *apiv1.WatchJobRequest, stream apiv1.DaemonService_WatchJobServer) error {
	ch, unsub := s.bus.Subscribe(req.FromSequence)
	defer unsub()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if req.BatchID != "" && e.Request != req.BatchID {
				continue
			}
			if err := stream.Send(&apiv1.JobEvent{
				Type:      string(e.Type),
				BackendID: e.Backend,
				Error:     e.Error,
				Timestamp: e.Time,
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return stream.Context().Err()
		case <-s.shutdownCh:
			return status.Error(codes.Unavailable, "daemon is shutting down")
		}
	}
}

// Health reports daemon liveness and pool size.
func (s *GRPCServer) Health(ctx context.Context, req *apiv1.HealthRequest) (*apiv1.HealthResponse, error) {
	return &apiv1.HealthResponse{
		Healthy:      !s.isShuttingDown(),
		WorkerCount:  len(s.dispatcher.Records()),
		Version:      s.version,
		ShuttingDown: s.isShuttingDown(),
	}, nil
}

// Shutdown marks the server as shutting down and cancels every tracked
// batch if WaitForOutstanding is false.
func (s *GRPCServer) Shutdown(ctx context.Context, req *apiv1.ShutdownRequest) (*apiv1.ShutdownResponse, error) {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil, status.Error(codes.FailedPrecondition, "shutdown already in progress")
	}
	s.shuttingDown = true
	close(s.shutdownCh)
	active := make(map[string]*claim.Claim, len(s.active))
	for k, v := range s.active {
		active[k] = v
	}
	s.mu.Unlock()

	aborted := 0
	if !req.WaitForOutstanding {
		for _, c := range active {
			c.Cancel("daemon shutting down")
			aborted++
		}
	}

	return &apiv1.ShutdownResponse{Success: true, OutstandingAborted: aborted}, nil
}

var _ apiv1.DaemonServiceServer = (*GRPCServer)(nil)

package client

import (
	"context"
	"errors"
	"io"
	"testing"

	"google.golang.org/grpc"

	"github.com/dispatchd/dispatchd/internal/apiv1"
)

// mockDaemonClient implements apiv1.DaemonServiceClient for testing, the
// same white-box injection pattern as the teacher's client_test.go.
type mockDaemonClient struct {
	submitFn func(context.Context, *apiv1.SubmitGenerationRequest, ...grpc.CallOption) (*apiv1.SubmitGenerationResponse, error)
	cancelFn func(context.Context, *apiv1.CancelGenerationRequest, ...grpc.CallOption) (*apiv1.CancelGenerationResponse, error)
	listFn   func(context.Context, *apiv1.ListWorkersRequest, ...grpc.CallOption) (*apiv1.ListWorkersResponse, error)
	healthFn func(context.Context, *apiv1.HealthRequest, ...grpc.CallOption) (*apiv1.HealthResponse, error)
	shutFn   func(context.Context, *apiv1.ShutdownRequest, ...grpc.CallOption) (*apiv1.ShutdownResponse, error)
	watchFn  func(context.Context, *apiv1.WatchJobRequest, ...grpc.CallOption) (apiv1.DaemonService_WatchJobClient, error)
}

func (m *mockDaemonClient) SubmitGeneration(ctx context.Context, in *apiv1.SubmitGenerationRequest, opts ...grpc.CallOption) (*apiv1.SubmitGenerationResponse, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, in, opts...)
	}
	return nil, errors.New("submitFn not set")
}

func (m *mockDaemonClient) CancelGeneration(ctx context.Context, in *apiv1.CancelGenerationRequest, opts ...grpc.CallOption) (*apiv1.CancelGenerationResponse, error) {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, in, opts...)
	}
	return nil, errors.New("cancelFn not set")
}

func (m *mockDaemonClient) ListWorkers(ctx context.Context, in *apiv1.ListWorkersRequest, opts ...grpc.CallOption) (*apiv1.ListWorkersResponse, error) {
	if m.listFn != nil {
		return m.listFn(ctx, in, opts...)
	}
	return nil, errors.New("listFn not set")
}

func (m *mockDaemonClient) Health(ctx context.Context, in *apiv1.HealthRequest, opts ...grpc.CallOption) (*apiv1.HealthResponse, error) {
	if m.healthFn != nil {
		return m.healthFn(ctx, in, opts...)
	}
	return nil, errors.New("healthFn not set")
}

func (m *mockDaemonClient) Shutdown(ctx context.Context, in *apiv1.ShutdownRequest, opts ...grpc.CallOption) (*apiv1.ShutdownResponse, error) {
	if m.shutFn != nil {
		return m.shutFn(ctx, in, opts...)
	}
	return nil, errors.New("shutFn not set")
}

func (m *mockDaemonClient) WatchJob(ctx context.Context, in *apiv1.WatchJobRequest, opts ...grpc.CallOption) (apiv1.DaemonService_WatchJobClient, error) {
	if m.watchFn != nil {
		return m.watchFn(ctx, in, opts...)
	}
	return nil, errors.New("watchFn not set")
}

// fakeWatchStream yields a fixed sequence of events then io.EOF.
type fakeWatchStream struct {
	apiv1.DaemonService_WatchJobClient
	events []*apiv1.JobEvent
	pos    int
}

func (s *fakeWatchStream) Recv() (*apiv1.JobEvent, error) {
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}

func TestSubmitGeneration_ReturnsBatchID(t *testing.T) {
	mock := &mockDaemonClient{
		submitFn: func(ctx context.Context, in *apiv1.SubmitGenerationRequest, opts ...grpc.CallOption) (*apiv1.SubmitGenerationResponse, error) {
			if in.Prompt != "a cat" {
				t.Errorf("unexpected prompt %q", in.Prompt)
			}
			return &apiv1.SubmitGenerationResponse{BatchID: "batch-1"}, nil
		},
	}
	c := &Client{daemon: mock}

	id, err := c.SubmitGeneration(context.Background(), &apiv1.SubmitGenerationRequest{Prompt: "a cat"})
	if err != nil {
		t.Fatalf("SubmitGeneration: %v", err)
	}
	if id != "batch-1" {
		t.Errorf("expected batch-1, got %q", id)
	}
}

func TestCancelGeneration_ReportsOutcome(t *testing.T) {
	mock := &mockDaemonClient{
		cancelFn: func(ctx context.Context, in *apiv1.CancelGenerationRequest, opts ...grpc.CallOption) (*apiv1.CancelGenerationResponse, error) {
			return &apiv1.CancelGenerationResponse{Cancelled: in.BatchID == "known"}, nil
		},
	}
	c := &Client{daemon: mock}

	cancelled, err := c.CancelGeneration(context.Background(), "known")
	if err != nil || !cancelled {
		t.Fatalf("expected cancelled=true, err=nil; got %v, %v", cancelled, err)
	}

	cancelled, err = c.CancelGeneration(context.Background(), "unknown")
	if err != nil || cancelled {
		t.Fatalf("expected cancelled=false, err=nil; got %v, %v", cancelled, err)
	}
}

func TestListWorkers_ReturnsSnapshot(t *testing.T) {
	mock := &mockDaemonClient{
		listFn: func(ctx context.Context, in *apiv1.ListWorkersRequest, opts ...grpc.CallOption) (*apiv1.ListWorkersResponse, error) {
			return &apiv1.ListWorkersResponse{Workers: []apiv1.WorkerStatus{{ID: "w1"}}}, nil
		},
	}
	c := &Client{daemon: mock}

	workers, err := c.ListWorkers(context.Background())
	if err != nil {
		t.Fatalf("ListWorkers: %v", err)
	}
	if len(workers) != 1 || workers[0].ID != "w1" {
		t.Fatalf("unexpected workers: %+v", workers)
	}
}

func TestHealth_PassesThrough(t *testing.T) {
	mock := &mockDaemonClient{
		healthFn: func(ctx context.Context, in *apiv1.HealthRequest, opts ...grpc.CallOption) (*apiv1.HealthResponse, error) {
			return &apiv1.HealthResponse{Healthy: true, WorkerCount: 3}, nil
		},
	}
	c := &Client{daemon: mock}

	health, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !health.Healthy || health.WorkerCount != 3 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestShutdown_ForwardsFlags(t *testing.T) {
	var gotWait bool
	var gotTimeout int
	mock := &mockDaemonClient{
		shutFn: func(ctx context.Context, in *apiv1.ShutdownRequest, opts ...grpc.CallOption) (*apiv1.ShutdownResponse, error) {
			gotWait = in.WaitForOutstanding
			gotTimeout = in.TimeoutSeconds
			return &apiv1.ShutdownResponse{Success: true}, nil
		},
	}
	c := &Client{daemon: mock}

	if err := c.Shutdown(context.Background(), true, 30); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !gotWait || gotTimeout != 30 {
		t.Errorf("flags not forwarded: wait=%v timeout=%d", gotWait, gotTimeout)
	}
}

func TestWatchJob_StreamsUntilEOF(t *testing.T) {
	stream := &fakeWatchStream{events: []*apiv1.JobEvent{
		{Sequence: 1, Type: "request.queued"},
		{Sequence: 2, Type: "request.loaded"},
	}}
	mock := &mockDaemonClient{
		watchFn: func(ctx context.Context, in *apiv1.WatchJobRequest, opts ...grpc.CallOption) (apiv1.DaemonService_WatchJobClient, error) {
			return stream, nil
		},
	}
	c := &Client{daemon: mock}

	var received []*apiv1.JobEvent
	err := c.WatchJob(context.Background(), "batch-1", 0, func(e *apiv1.JobEvent) {
		received = append(received, e)
	})
	if err != nil {
		t.Fatalf("WatchJob: %v", err)
	}
	if len(received) != 2 {
		t.Fatalf("expected 2 events, got %d", len(received))
	}
}

func TestWatchJob_PropagatesStreamError(t *testing.T) {
	wantErr := errors.New("connection reset")
	mock := &mockDaemonClient{
		watchFn: func(ctx context.Context, in *apiv1.WatchJobRequest, opts ...grpc.CallOption) (apiv1.DaemonService_WatchJobClient, error) {
			return nil, wantErr
		},
	}
	c := &Client{daemon: mock}

	err := c.WatchJob(context.Background(), "batch-1", 0, func(*apiv1.JobEvent) {})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

// Package client is a thin gRPC wrapper around apiv1, giving cmd/dispatchd's
// CLI surface a typed handle to a running daemon over its Unix socket,
// matching the teacher's internal/client/client.go.
package client

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dispatchd/dispatchd/internal/apiv1"
)

// Client wraps a gRPC connection and the DaemonService stub.
type Client struct {
	conn   *grpc.ClientConn
	daemon apiv1.DaemonServiceClient
}

// New dials the daemon over its Unix socket. Credentials are insecure since
// the socket is already protected by filesystem permissions.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:   conn,
		daemon: apiv1.NewDaemonServiceClient(conn),
	}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// SubmitGeneration submits a generation request and returns its batch id.
func (c *Client) SubmitGeneration(ctx context.Context, req *apiv1.SubmitGenerationRequest) (string, error) {
	resp, err := c.daemon.SubmitGeneration(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.BatchID, nil
}

// CancelGeneration cancels a batch, returning whether it was accepted.
func (c *Client) CancelGeneration(ctx context.Context, batchID string) (bool, error) {
	resp, err := c.daemon.CancelGeneration(ctx, &apiv1.CancelGenerationRequest{BatchID: batchID})
	if err != nil {
		return false, err
	}
	return resp.Cancelled, nil
}

// ListWorkers returns every Worker Record the daemon currently manages.
func (c *Client) ListWorkers(ctx context.Context) ([]apiv1.WorkerStatus, error) {
	resp, err := c.daemon.ListWorkers(ctx, &apiv1.ListWorkersRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Workers, nil
}

// Health reports daemon liveness and pool size.
func (c *Client) Health(ctx context.Context) (*apiv1.HealthResponse, error) {
	return c.daemon.Health(ctx, &apiv1.HealthRequest{})
}

// Shutdown requests daemon termination.
func (c *Client) Shutdown(ctx context.Context, waitForOutstanding bool, timeoutSeconds int) error {
	_, err := c.daemon.Shutdown(ctx, &apiv1.ShutdownRequest{
		WaitForOutstanding: waitForOutstanding,
		TimeoutSeconds:     timeoutSeconds,
	})
	return err
}

// WatchJob streams events for batchID, calling handler for each one. It
// blocks until the stream ends (returns nil), ctx is cancelled, or an error
// occurs. fromSequence of 0 means from the beginning of the retained log.
func (c *Client) WatchJob(ctx context.Context, batchID string, fromSequence int, handler func(*apiv1.JobEvent)) error {
	stream, err := c.daemon.WatchJob(ctx, &apiv1.WatchJobRequest{
		BatchID:      batchID,
		FromSequence: fromSequence,
	})
	if err != nil {
		return err
	}

	for {
		event, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		handler(event)
	}
}

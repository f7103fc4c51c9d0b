package apiv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const serviceName = "dispatchd.apiv1.DaemonService"

// DaemonServiceServer is the service a daemon process implements. It mirrors
// the shape protoc-gen-go-grpc would emit from a .proto service block, hand
// written because this module doesn't depend on protoc-generated code.
type DaemonServiceServer interface {
	SubmitGeneration(context.Context, *SubmitGenerationRequest) (*SubmitGenerationResponse, error)
	CancelGeneration(context.Context, *CancelGenerationRequest) (*CancelGenerationResponse, error)
	ListWorkers(context.Context, *ListWorkersRequest) (*ListWorkersResponse, error)
	WatchJob(*WatchJobRequest, DaemonService_WatchJobServer) error
	Health(context.Context, *HealthRequest) (*HealthResponse, error)
	Shutdown(context.Context, *ShutdownRequest) (*ShutdownResponse, error)
}

// UnimplementedDaemonServiceServer can be embedded to satisfy
// DaemonServiceServer while only overriding the methods a given server
// needs, matching the forward-compatibility pattern generated stubs use.
type UnimplementedDaemonServiceServer struct{}

func (UnimplementedDaemonServiceServer) SubmitGeneration(context.Context, *SubmitGenerationRequest) (*SubmitGenerationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SubmitGeneration not implemented")
}

func (UnimplementedDaemonServiceServer) CancelGeneration(context.Context, *CancelGenerationRequest) (*CancelGenerationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelGeneration not implemented")
}

func (UnimplementedDaemonServiceServer) ListWorkers(context.Context, *ListWorkersRequest) (*ListWorkersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListWorkers not implemented")
}

func (UnimplementedDaemonServiceServer) WatchJob(*WatchJobRequest, DaemonService_WatchJobServer) error {
	return status.Error(codes.Unimplemented, "method WatchJob not implemented")
}

func (UnimplementedDaemonServiceServer) Health(context.Context, *HealthRequest) (*HealthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Health not implemented")
}

func (UnimplementedDaemonServiceServer) Shutdown(context.Context, *ShutdownRequest) (*ShutdownResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Shutdown not implemented")
}

// DaemonService_WatchJobServer is the server-side stream handle WatchJob
// sends events on.
type DaemonService_WatchJobServer interface {
	Send(*JobEvent) error
	grpc.ServerStream
}

type daemonServiceWatchJobServer struct {
	grpc.ServerStream
}

func (s *daemonServiceWatchJobServer) Send(e *JobEvent) error {
	return s.ServerStream.SendMsg(e)
}

// RegisterDaemonServiceServer registers srv on s, the way a generated
// RegisterXServer function would.
func RegisterDaemonServiceServer(s grpc.ServiceRegistrar, srv DaemonServiceServer) {
	s.RegisterService(&daemonServiceDesc, srv)
}

func daemonServiceSubmitGenerationHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitGenerationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DaemonServiceServer).SubmitGeneration(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SubmitGeneration"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DaemonServiceServer).SubmitGeneration(ctx, req.(*SubmitGenerationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func daemonServiceCancelGenerationHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CancelGenerationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DaemonServiceServer).CancelGeneration(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/CancelGeneration"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DaemonServiceServer).CancelGeneration(ctx, req.(*CancelGenerationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func daemonServiceListWorkersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListWorkersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DaemonServiceServer).ListWorkers(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ListWorkers"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DaemonServiceServer).ListWorkers(ctx, req.(*ListWorkersRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func daemonServiceHealthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HealthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DaemonServiceServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Health"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DaemonServiceServer).Health(ctx, req.(*HealthRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func daemonServiceShutdownHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ShutdownRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DaemonServiceServer).Shutdown(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Shutdown"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DaemonServiceServer).Shutdown(ctx, req.(*ShutdownRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func daemonServiceWatchJobHandler(srv any, stream grpc.ServerStream) error {
	m := new(WatchJobRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(DaemonServiceServer).WatchJob(m, &daemonServiceWatchJobServer{stream})
}

var daemonServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DaemonServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitGeneration", Handler: daemonServiceSubmitGenerationHandler},
		{MethodName: "CancelGeneration", Handler: daemonServiceCancelGenerationHandler},
		{MethodName: "ListWorkers", Handler: daemonServiceListWorkersHandler},
		{MethodName: "Health", Handler: daemonServiceHealthHandler},
		{MethodName: "Shutdown", Handler: daemonServiceShutdownHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchJob",
			Handler:       daemonServiceWatchJobHandler,
			ServerStreams: true,
		},
	},
}

// DaemonServiceClient is the client stub a CLI or sidecar dials against.
type DaemonServiceClient interface {
	SubmitGeneration(ctx context.Context, in *SubmitGenerationRequest, opts ...grpc.CallOption) (*SubmitGenerationResponse, error)
	CancelGeneration(ctx context.Context, in *CancelGenerationRequest, opts ...grpc.CallOption) (*CancelGenerationResponse, error)
	ListWorkers(ctx context.Context, in *ListWorkersRequest, opts ...grpc.CallOption) (*ListWorkersResponse, error)
	WatchJob(ctx context.Context, in *WatchJobRequest, opts ...grpc.CallOption) (DaemonService_WatchJobClient, error)
	Health(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error)
	Shutdown(ctx context.Context, in *ShutdownRequest, opts ...grpc.CallOption) (*ShutdownResponse, error)
}

type daemonServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewDaemonServiceClient wraps an existing connection in the DaemonService
// stub.
func NewDaemonServiceClient(cc grpc.ClientConnInterface) DaemonServiceClient {
	return &daemonServiceClient{cc}
}

func (c *daemonServiceClient) SubmitGeneration(ctx context.Context, in *SubmitGenerationRequest, opts ...grpc.CallOption) (*SubmitGenerationResponse, error) {
	out := new(SubmitGenerationResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/SubmitGeneration", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *daemonServiceClient) CancelGeneration(ctx context.Context, in *CancelGenerationRequest, opts ...grpc.CallOption) (*CancelGenerationResponse, error) {
	out := new(CancelGenerationResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/CancelGeneration", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *daemonServiceClient) ListWorkers(ctx context.Context, in *ListWorkersRequest, opts ...grpc.CallOption) (*ListWorkersResponse, error) {
	out := new(ListWorkersResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ListWorkers", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *daemonServiceClient) Health(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error) {
	out := new(HealthResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Health", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *daemonServiceClient) Shutdown(ctx context.Context, in *ShutdownRequest, opts ...grpc.CallOption) (*ShutdownResponse, error) {
	out := new(ShutdownResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Shutdown", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// DaemonService_WatchJobClient is the client-side receive half of WatchJob.
type DaemonService_WatchJobClient interface {
	Recv() (*JobEvent, error)
	grpc.ClientStream
}

type daemonServiceWatchJobClient struct {
	grpc.ClientStream
}

func (x *daemonServiceWatchJobClient) Recv() (*JobEvent, error) {
	m := new(JobEvent)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *daemonServiceClient) WatchJob(ctx context.Context, in *WatchJobRequest, opts ...grpc.CallOption) (DaemonService_WatchJobClient, error) {
	stream, err := c.cc.NewStream(ctx, &daemonServiceDesc.Streams[0], "/"+serviceName+"/WatchJob", opts...)
	if err != nil {
		return nil, err
	}
	x := &daemonServiceWatchJobClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

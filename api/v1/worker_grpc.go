package v1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	WorkerService_Lease_FullMethodName       = "/lczero.sprt.v1.WorkerService/Lease"
	WorkerService_Submit_FullMethodName      = "/lczero.sprt.v1.WorkerService/Submit"
	WorkerService_ReportError_FullMethodName = "/lczero.sprt.v1.WorkerService/ReportError"
	WorkerService_Heartbeat_FullMethodName   = "/lczero.sprt.v1.WorkerService/Heartbeat"
)

// WorkerServiceClient is the client API for WorkerService.
type WorkerServiceClient interface {
	Lease(ctx context.Context, in *LeaseRequest, opts ...grpc.CallOption) (*LeaseResponse, error)
	Submit(ctx context.Context, in *SubmitRequest, opts ...grpc.CallOption) (*SubmitResponse, error)
	ReportError(ctx context.Context, in *ReportErrorRequest, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error)
}

type workerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewWorkerServiceClient(cc grpc.ClientConnInterface) WorkerServiceClient {
	return &workerServiceClient{cc}
}

func (c *workerServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *workerServiceClient) Lease(ctx context.Context, in *LeaseRequest, opts ...grpc.CallOption) (*LeaseResponse, error) {
	out := new(LeaseResponse)
	if err := c.invoke(ctx, WorkerService_Lease_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerServiceClient) Submit(ctx context.Context, in *SubmitRequest, opts ...grpc.CallOption) (*SubmitResponse, error) {
	out := new(SubmitResponse)
	if err := c.invoke(ctx, WorkerService_Submit_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerServiceClient) ReportError(ctx context.Context, in *ReportErrorRequest, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.invoke(ctx, WorkerService_ReportError_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerServiceClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error) {
	out := new(HeartbeatResponse)
	if err := c.invoke(ctx, WorkerService_Heartbeat_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// WorkerServiceServer is the server API for WorkerService.
type WorkerServiceServer interface {
	Lease(context.Context, *LeaseRequest) (*LeaseResponse, error)
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
	ReportError(context.Context, *ReportErrorRequest) (*emptypb.Empty, error)
	Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error)
	mustEmbedUnimplementedWorkerServiceServer()
}

// UnimplementedWorkerServiceServer must be embedded by implementations.
type UnimplementedWorkerServiceServer struct{}

func (UnimplementedWorkerServiceServer) Lease(context.Context, *LeaseRequest) (*LeaseResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Lease not implemented")
}
func (UnimplementedWorkerServiceServer) Submit(context.Context, *SubmitRequest) (*SubmitResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Submit not implemented")
}
func (UnimplementedWorkerServiceServer) ReportError(context.Context, *ReportErrorRequest) (*emptypb.Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ReportError not implemented")
}
func (UnimplementedWorkerServiceServer) Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Heartbeat not implemented")
}
func (UnimplementedWorkerServiceServer) mustEmbedUnimplementedWorkerServiceServer() {}

func RegisterWorkerServiceServer(s grpc.ServiceRegistrar, srv WorkerServiceServer) {
	s.RegisterService(&WorkerService_ServiceDesc, srv)
}

func _WorkerService_Lease_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(LeaseRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServiceServer).Lease(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WorkerService_Lease_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServiceServer).Lease(ctx, req.(*LeaseRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _WorkerService_Submit_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServiceServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WorkerService_Submit_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServiceServer).Submit(ctx, req.(*SubmitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _WorkerService_ReportError_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReportErrorRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServiceServer).ReportError(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WorkerService_ReportError_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServiceServer).ReportError(ctx, req.(*ReportErrorRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _WorkerService_Heartbeat_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HeartbeatRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServiceServer).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WorkerService_Heartbeat_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServiceServer).Heartbeat(ctx, req.(*HeartbeatRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// WorkerService_ServiceDesc is the grpc.ServiceDesc for WorkerService.
var WorkerService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "lczero.sprt.v1.WorkerService",
	HandlerType: (*WorkerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Lease", Handler: _WorkerService_Lease_Handler},
		{MethodName: "Submit", Handler: _WorkerService_Submit_Handler},
		{MethodName: "ReportError", Handler: _WorkerService_ReportError_Handler},
		{MethodName: "Heartbeat", Handler: _WorkerService_Heartbeat_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lczero/sprt/v1/worker",
}

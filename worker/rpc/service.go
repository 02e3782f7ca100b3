package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName = "ows.Worker"
	warpMethod  = "/ows.Worker/Warp"
	infoMethod  = "/ows.Worker/Info"
)

// WorkerServer is implemented by raster workers.
type WorkerServer interface {
	Warp(context.Context, *WarpRequest) (*WarpResult, error)
	Info(context.Context, *InfoRequest) (*DatasetInfo, error)
}

func RegisterWorkerServer(s grpc.ServiceRegistrar, srv WorkerServer) {
	s.RegisterService(&workerServiceDesc, srv)
}

func warpHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(WarpRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Warp(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: warpMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorkerServer).Warp(ctx, req.(*WarpRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func infoHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(InfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Info(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: infoMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorkerServer).Info(ctx, req.(*InfoRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var workerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*WorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Warp", Handler: warpHandler},
		{MethodName: "Info", Handler: infoHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "worker.json",
}

// WorkerClient calls a raster worker.
type WorkerClient struct {
	cc grpc.ClientConnInterface
}

func NewWorkerClient(cc grpc.ClientConnInterface) *WorkerClient {
	return &WorkerClient{cc: cc}
}

func (c *WorkerClient) Warp(ctx context.Context, in *WarpRequest) (*WarpResult, error) {
	out := new(WarpResult)
	err := c.cc.Invoke(ctx, warpMethod, in, out, grpc.CallContentSubtype(Name))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WorkerClient) Info(ctx context.Context, in *InfoRequest) (*DatasetInfo, error) {
	out := new(DatasetInfo)
	err := c.cc.Invoke(ctx, infoMethod, in, out, grpc.CallContentSubtype(Name))
	if err != nil {
		return nil, err
	}
	return out, nil
}

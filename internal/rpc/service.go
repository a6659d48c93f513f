// ABOUTME: gRPC service descriptor for the wallet gateway, written by hand over structpb.Struct
// ABOUTME: Apps call Call/Batch; the approval UI lists, watches and resolves authorization requests

package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "wallet.v1.WalletGateway"

// Method names.
const (
	MethodCall                 = "Call"
	MethodBatch                = "Batch"
	MethodResolveAuthorization = "ResolveAuthorization"
	MethodCancelAuthorization  = "CancelAuthorization"
	MethodListPending          = "ListPending"
	MethodListInteractions     = "ListInteractions"
	MethodInteractionHistory   = "InteractionHistory"
	MethodListDecisions        = "ListDecisions"
	MethodGetDiagnostic        = "GetDiagnostic"
	MethodWatchAuthorizations  = "WatchAuthorizations"
	MethodWatchInteractions    = "WatchInteractions"
	MethodWatchDiagnostics     = "WatchDiagnostics"
)

// FullMethod returns the gRPC path of a method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// WalletGatewayServer is implemented by Server. Every message is a
// structpb.Struct holding the JSON form of the gateway's types.
type WalletGatewayServer interface {
	Call(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Batch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveAuthorization(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelAuthorization(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPending(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListInteractions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InteractionHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDecisions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDiagnostic(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchAuthorizations(*structpb.Struct, grpc.ServerStream) error
	WatchInteractions(*structpb.Struct, grpc.ServerStream) error
	WatchDiagnostics(*structpb.Struct, grpc.ServerStream) error
}

type unaryFunc func(WalletGatewayServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, fn unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(WalletGatewayServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(WalletGatewayServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type streamFunc func(WalletGatewayServer, *structpb.Struct, grpc.ServerStream) error

func serverStream(name string, fn streamFunc) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(structpb.Struct)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return fn(srv.(WalletGatewayServer), in, stream)
		},
	}
}

// ServiceDesc describes the wallet gateway service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WalletGatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodCall, WalletGatewayServer.Call),
		unary(MethodBatch, WalletGatewayServer.Batch),
		unary(MethodResolveAuthorization, WalletGatewayServer.ResolveAuthorization),
		unary(MethodCancelAuthorization, WalletGatewayServer.CancelAuthorization),
		unary(MethodListPending, WalletGatewayServer.ListPending),
		unary(MethodListInteractions, WalletGatewayServer.ListInteractions),
		unary(MethodInteractionHistory, WalletGatewayServer.InteractionHistory),
		unary(MethodListDecisions, WalletGatewayServer.ListDecisions),
		unary(MethodGetDiagnostic, WalletGatewayServer.GetDiagnostic),
	},
	Streams: []grpc.StreamDesc{
		serverStream(MethodWatchAuthorizations, WalletGatewayServer.WatchAuthorizations),
		serverStream(MethodWatchInteractions, WalletGatewayServer.WatchInteractions),
		serverStream(MethodWatchDiagnostics, WalletGatewayServer.WatchDiagnostics),
	},
	Metadata: "wallet/v1/wallet_gateway.proto",
}

// Register adds srv to s.
func Register(s grpc.ServiceRegistrar, srv WalletGatewayServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ABOUTME: Thin client for the wallet gateway service
// ABOUTME: Used by tests and tooling; apps may use any gRPC client that speaks structpb

package rpc

import (
	"context"
	"encoding/json"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/2389/wallet-gateway/internal/authz"
	"github.com/2389/wallet-gateway/internal/diag"
	"github.com/2389/wallet-gateway/internal/interaction"
	"github.com/2389/wallet-gateway/internal/wallet"
)

// Client calls a wallet gateway over conn.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, in any, out any) error {
	return invoke(ctx, c.conn, FullMethod(method), in, out)
}

// invoke makes a unary structpb call. A nil out discards the response.
func invoke(ctx context.Context, conn grpc.ClientConnInterface, fullMethod string, in any, out any) error {
	req, err := toStruct(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, fullMethod, req, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return fromStruct(resp, out)
}

// Call runs one wallet command and returns its JSON result.
func (c *Client) Call(ctx context.Context, call wallet.Call) (json.RawMessage, error) {
	var out CallResponse
	if err := c.invoke(ctx, MethodCall, call, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Batch runs calls atomically.
func (c *Client) Batch(ctx context.Context, calls []wallet.Call) ([]BatchEntry, error) {
	var out BatchResponse
	if err := c.invoke(ctx, MethodBatch, BatchRequest{Calls: calls}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Resolve answers an authorization request.
func (c *Client) Resolve(ctx context.Context, resp authz.Response) (authz.ResolveResult, error) {
	var out ResolveResponse
	if err := c.invoke(ctx, MethodResolveAuthorization, resp, &out); err != nil {
		return "", err
	}
	return out.Result, nil
}

// ListPending returns requests awaiting a decision.
func (c *Client) ListPending(ctx context.Context) ([]authz.Request, error) {
	var out PendingResponse
	if err := c.invoke(ctx, MethodListPending, struct{}{}, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

// GetDiagnostic fetches a retained diagnostic export.
func (c *Client) GetDiagnostic(ctx context.Context, id string) (diag.Export, error) {
	var out DiagnosticResponse
	if err := c.invoke(ctx, MethodGetDiagnostic, IDRequest{ID: id}, &out); err != nil {
		return diag.Export{}, err
	}
	return out.Diagnostic, nil
}

// Watch is a typed server stream.
type Watch[T any] struct {
	stream grpc.ClientStream
}

// Recv blocks for the next value. It returns io.EOF when the server ends the stream.
func (w *Watch[T]) Recv() (T, error) {
	var v T
	msg := new(structpb.Struct)
	if err := w.stream.RecvMsg(msg); err != nil {
		return v, err
	}
	err := fromStruct(msg, &v)
	return v, err
}

func openWatch[T any](ctx context.Context, c *Client, method string, in any) (*Watch[T], error) {
	req, err := toStruct(in)
	if err != nil {
		return nil, err
	}
	desc := &grpc.StreamDesc{StreamName: method, ServerStreams: true}
	stream, err := c.conn.NewStream(ctx, desc, FullMethod(method))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil && err != io.EOF {
		return nil, err
	}
	return &Watch[T]{stream: stream}, nil
}

// WatchAuthorizations streams authorization requests, starting with the
// ones already pending.
func (c *Client) WatchAuthorizations(ctx context.Context) (*Watch[authz.Request], error) {
	return openWatch[authz.Request](ctx, c, MethodWatchAuthorizations, struct{}{})
}

// WatchInteractions streams interaction snapshots. An empty appID means
// every app and is only allowed for the UI.
func (c *Client) WatchInteractions(ctx context.Context, appID string) (*Watch[interaction.Interaction], error) {
	return openWatch[interaction.Interaction](ctx, c, MethodWatchInteractions, AppFilter{AppID: appID})
}

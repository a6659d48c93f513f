// ABOUTME: WalletGateway service implementation
// ABOUTME: The caller's app id always comes from its token, never from the request body

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/2389/wallet-gateway/internal/auth"
	"github.com/2389/wallet-gateway/internal/authz"
	"github.com/2389/wallet-gateway/internal/diag"
	"github.com/2389/wallet-gateway/internal/events"
	"github.com/2389/wallet-gateway/internal/interaction"
	"github.com/2389/wallet-gateway/internal/store"
	"github.com/2389/wallet-gateway/internal/wallet"
)

// CallResponse carries the JSON result of one command.
type CallResponse struct {
	Result json.RawMessage `json:"result"`
}

// BatchRequest is the Batch input.
type BatchRequest struct {
	Calls []wallet.Call `json:"calls"`
}

// BatchEntry is one batch result. Error and Code are set for entries that
// failed on their own without failing the batch.
type BatchEntry struct {
	Method string          `json:"method"`
	Result json.RawMessage `json:"result,omitempty"`
	Cached bool            `json:"cached,omitempty"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

// BatchResponse lists results in submission order.
type BatchResponse struct {
	Results []BatchEntry `json:"results"`
}

// ResolveResponse reports what happened to a UI response.
type ResolveResponse struct {
	Result authz.ResolveResult `json:"result"`
}

// IDRequest names a request or interaction.
type IDRequest struct {
	ID string `json:"id"`
}

// CancelResponse reports whether a pending request was cancelled.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// PendingResponse lists requests awaiting a decision.
type PendingResponse struct {
	Requests []authz.Request `json:"requests"`
}

// AppFilter scopes a list or watch to one app.
type AppFilter struct {
	AppID string `json:"appId,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// InteractionsResponse lists interaction snapshots.
type InteractionsResponse struct {
	Interactions []interaction.Interaction `json:"interactions"`
}

// Decision is one audit trail entry.
type Decision struct {
	ID        string    `json:"id"`
	RequestID string    `json:"requestId"`
	AppID     string    `json:"appId"`
	Outcome   string    `json:"outcome"`
	Methods   []string  `json:"methods"`
	Timestamp time.Time `json:"timestamp"`
}

// DiagnosticResponse carries one retained export. Data is base64 in JSON.
type DiagnosticResponse struct {
	Diagnostic diag.Export `json:"diagnostic"`
}

// DecisionsResponse lists audit trail entries, newest first.
type DecisionsResponse struct {
	Decisions []Decision `json:"decisions"`
}

// Config wires a Server.
type Config struct {
	Wallet       *wallet.Wallet
	Engine       *authz.Engine
	Tracker      *interaction.Tracker
	Decisions    store.DecisionStore
	Requests     *events.Broadcaster[authz.Request]
	Interactions *events.Broadcaster[interaction.Interaction]
	Diagnostics  *events.Broadcaster[diag.Export]
	Exporter     *diag.Exporter
	Logger       *slog.Logger
}

// Server implements WalletGatewayServer.
type Server struct {
	wallet       *wallet.Wallet
	engine       *authz.Engine
	tracker      *interaction.Tracker
	decisions    store.DecisionStore
	requests     *events.Broadcaster[authz.Request]
	interactions *events.Broadcaster[interaction.Interaction]
	diagnostics  *events.Broadcaster[diag.Export]
	exporter     *diag.Exporter
	logger       *slog.Logger
}

var _ WalletGatewayServer = (*Server)(nil)

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		wallet:       cfg.Wallet,
		engine:       cfg.Engine,
		tracker:      cfg.Tracker,
		decisions:    cfg.Decisions,
		requests:     cfg.Requests,
		interactions: cfg.Interactions,
		diagnostics:  cfg.Diagnostics,
		exporter:     cfg.Exporter,
		logger:       cfg.Logger.With("component", "grpc"),
	}
}

func decode(in *structpb.Struct, v any) error {
	if err := fromStruct(in, v); err != nil {
		return toStatus(fmt.Errorf("%w: %v", errBadRequest, err))
	}
	return nil
}

func respond(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Call runs one wallet command as the calling app.
func (s *Server) Call(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := auth.Require(ctx, auth.RoleApp)
	if err != nil {
		return nil, err
	}
	var call wallet.Call
	if err := decode(in, &call); err != nil {
		return nil, err
	}

	out, err := s.wallet.Call(ctx, id.Subject, call)
	if err != nil {
		s.logger.Info("call failed", "app_id", id.Subject, "method", call.Method, "error", err)
		return nil, toStatus(err)
	}
	result, err := json.Marshal(out)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding %s result: %v", call.Method, err)
	}
	return respond(CallResponse{Result: result})
}

// Batch runs calls atomically as the calling app.
func (s *Server) Batch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := auth.Require(ctx, auth.RoleApp)
	if err != nil {
		return nil, err
	}
	var req BatchRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	results, err := s.wallet.Batch(ctx, id.Subject, req.Calls)
	if err != nil {
		s.logger.Info("batch failed", "app_id", id.Subject, "calls", len(req.Calls), "error", err)
		return nil, toStatus(err)
	}
	out := BatchResponse{Results: make([]BatchEntry, len(results))}
	for i, r := range results {
		entry := BatchEntry{Method: r.Method, Cached: r.Cached}
		if r.Err != nil {
			entry.Error = r.Err.Error()
			entry.Code = codeOf(r.Err).String()
		} else {
			entry.Result, err = json.Marshal(r.Value)
			if err != nil {
				return nil, status.Errorf(codes.Internal, "encoding %s result: %v", r.Method, err)
			}
		}
		out.Results[i] = entry
	}
	return respond(out)
}

// ResolveAuthorization delivers the UI's decision.
func (s *Server) ResolveAuthorization(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.Require(ctx, auth.RoleUI); err != nil {
		return nil, err
	}
	var resp authz.Response
	if err := decode(in, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, toStatus(fmt.Errorf("%w: id is required", errBadRequest))
	}
	return respond(ResolveResponse{Result: s.engine.Resolve(resp)})
}

// CancelAuthorization abandons a pending request.
func (s *Server) CancelAuthorization(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.Require(ctx, auth.RoleUI); err != nil {
		return nil, err
	}
	var req IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return respond(CancelResponse{Cancelled: s.engine.Cancel(req.ID)})
}

// ListPending returns requests awaiting a decision, oldest first.
func (s *Server) ListPending(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.Require(ctx, auth.RoleUI); err != nil {
		return nil, err
	}
	reqs := s.engine.Pending()
	if reqs == nil {
		reqs = []authz.Request{}
	}
	return respond(PendingResponse{Requests: reqs})
}

// scopeApp resolves which app a request may look at. Apps only see
// themselves; the UI sees the requested app, or every app when none is named.
func scopeApp(id auth.Identity, requested string) (string, error) {
	if id.Role == auth.RoleUI {
		return requested, nil
	}
	if requested != "" && requested != id.Subject {
		return "", status.Error(codes.PermissionDenied, "apps may only read their own interactions")
	}
	return id.Subject, nil
}

// ListInteractions returns the latest snapshot of recent interactions.
func (s *Server) ListInteractions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := auth.Require(ctx, auth.RoleApp, auth.RoleUI)
	if err != nil {
		return nil, err
	}
	var filter AppFilter
	if err := decode(in, &filter); err != nil {
		return nil, err
	}
	appID, err := scopeApp(id, filter.AppID)
	if err != nil {
		return nil, err
	}
	list, err := s.tracker.List(ctx, appID, filter.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	if list == nil {
		list = []interaction.Interaction{}
	}
	return respond(InteractionsResponse{Interactions: list})
}

// InteractionHistory returns every snapshot of one interaction in order.
func (s *Server) InteractionHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := auth.Require(ctx, auth.RoleApp, auth.RoleUI)
	if err != nil {
		return nil, err
	}
	var req IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	history, err := s.tracker.History(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	if len(history) == 0 || (id.Role == auth.RoleApp && history[0].AppID != id.Subject) {
		return nil, status.Errorf(codes.NotFound, "interaction %s not found", req.ID)
	}
	return respond(InteractionsResponse{Interactions: history})
}

// ListDecisions returns the authorization audit trail.
func (s *Server) ListDecisions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.Require(ctx, auth.RoleUI); err != nil {
		return nil, err
	}
	var filter AppFilter
	if err := decode(in, &filter); err != nil {
		return nil, err
	}
	if s.decisions == nil {
		return respond(DecisionsResponse{Decisions: []Decision{}})
	}
	recs, err := s.decisions.ListDecisions(ctx, filter.AppID, filter.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	out := DecisionsResponse{Decisions: make([]Decision, len(recs))}
	for i, r := range recs {
		out.Decisions[i] = Decision{
			ID:        r.ID,
			RequestID: r.RequestID,
			AppID:     r.AppID,
			Outcome:   string(r.Outcome),
			Methods:   r.Methods,
			Timestamp: r.Timestamp,
		}
	}
	return respond(out)
}

// GetDiagnostic returns a retained diagnostic export by the id reported in
// an execution failure.
func (s *Server) GetDiagnostic(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.Require(ctx, auth.RoleUI); err != nil {
		return nil, err
	}
	var req IDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, toStatus(fmt.Errorf("%w: id is required", errBadRequest))
	}
	if s.exporter == nil {
		return nil, status.Errorf(codes.NotFound, "diagnostic %s not found", req.ID)
	}
	exp, err := s.exporter.Get(req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(DiagnosticResponse{Diagnostic: exp})
}

// WatchAuthorizations streams authorization requests to the UI. Requests
// already pending are sent first so a late UI can still answer them.
func (s *Server) WatchAuthorizations(_ *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()
	if _, err := auth.Require(ctx, auth.RoleUI); err != nil {
		return err
	}

	ch, _ := s.requests.Subscribe(ctx, events.AllTopics)
	sent := make(map[string]struct{})
	for _, req := range s.engine.Pending() {
		if err := send(stream, req); err != nil {
			return err
		}
		sent[req.ID] = struct{}{}
	}
	s.logger.Info("approval UI watching authorizations", "pending", len(sent))

	return pump(ctx, ch, func(req authz.Request) error {
		if _, dup := sent[req.ID]; dup {
			delete(sent, req.ID)
			return nil
		}
		return send(stream, req)
	})
}

// WatchInteractions streams interaction snapshots.
func (s *Server) WatchInteractions(in *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()
	id, err := auth.Require(ctx, auth.RoleApp, auth.RoleUI)
	if err != nil {
		return err
	}
	var filter AppFilter
	if err := decode(in, &filter); err != nil {
		return err
	}
	appID, err := scopeApp(id, filter.AppID)
	if err != nil {
		return err
	}
	topic := appID
	if topic == "" {
		topic = events.AllTopics
	}
	ch, _ := s.interactions.Subscribe(ctx, topic)
	return pump(ctx, ch, func(snap interaction.Interaction) error {
		return send(stream, snap)
	})
}

// WatchDiagnostics streams exported diagnostic bundles to the UI.
func (s *Server) WatchDiagnostics(in *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()
	if _, err := auth.Require(ctx, auth.RoleUI); err != nil {
		return err
	}
	var filter AppFilter
	if err := decode(in, &filter); err != nil {
		return err
	}
	topic := filter.AppID
	if topic == "" {
		topic = events.AllTopics
	}
	ch, _ := s.diagnostics.Subscribe(ctx, topic)
	return pump(ctx, ch, func(exp diag.Export) error {
		return send(stream, exp)
	})
}

func send(stream grpc.ServerStream, v any) error {
	msg, err := toStruct(v)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	if err := stream.SendMsg(msg); err != nil {
		return fmt.Errorf("sending: %w", err)
	}
	return nil
}

// pump forwards values from ch until ctx ends or the broadcaster closes.
func pump[T any](ctx context.Context, ch <-chan T, fn func(T) error) error {
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case v, ok := <-ch:
			if !ok {
				return nil
			}
			if err := fn(v); err != nil {
				return err
			}
		}
	}
}

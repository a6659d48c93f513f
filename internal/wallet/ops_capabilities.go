// ABOUTME: requestCapabilities lets an app ask for a scoped set of grants up front
// ABOUTME: The user may narrow the request; approved grants replace the app's stored approvals

package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/wallet-gateway/internal/authz"
	"github.com/2389/wallet-gateway/internal/capability"
	"github.com/2389/wallet-gateway/internal/interaction"
	"github.com/2389/wallet-gateway/internal/pipeline"
)

// CapabilityRequest is the argument of requestCapabilities. The UI may
// answer with the same shape to narrow what is granted.
type CapabilityRequest struct {
	Capabilities capability.List `json:"capabilities"`
	Mode         capability.Mode `json:"mode,omitempty"`
	ExpiresAt    *time.Time      `json:"expiresAt,omitempty"`
}

type capabilityDisplay struct {
	CapabilityRequest
	StorageKeys []string `json:"storageKeys"`
}

// CapabilityGrant is what requestCapabilities returns.
type CapabilityGrant struct {
	Capabilities capability.List `json:"capabilities"`
	StorageKeys  []string        `json:"storageKeys"`
	Mode         capability.Mode `json:"mode"`
	ExpiresAt    *time.Time      `json:"expiresAt,omitempty"`
}

type requestCapabilitiesOp struct {
	base
	noCheck[Input[CapabilityRequest], CapabilityGrant]
}

func newRequestCapabilities(w *Wallet) pipeline.Operation[Input[CapabilityRequest], capabilityDisplay, CapabilityRequest, CapabilityGrant] {
	return requestCapabilitiesOp{base: base{w: w, cmd: CommandRequestCapabilities}}
}

func (requestCapabilitiesOp) Interaction(in Input[CapabilityRequest]) interaction.Start {
	return interaction.Start{
		Title:       "Request capabilities",
		Description: fmt.Sprintf("%d capabilities", len(in.Args.Capabilities)),
	}
}

func (o requestCapabilitiesOp) Prepare(_ context.Context, in Input[CapabilityRequest]) (pipeline.Prepared[capabilityDisplay, CapabilityRequest], error) {
	if err := o.validate(in.Raw); err != nil {
		return pipeline.Prepared[capabilityDisplay, CapabilityRequest]{}, err
	}
	// No persistence: the grant itself is the stored outcome, so this
	// always reaches the user.
	return pipeline.Prepared[capabilityDisplay, CapabilityRequest]{
		Display: capabilityDisplay{CapabilityRequest: in.Args, StorageKeys: expandKeys(in.Args.Capabilities)},
		Exec:    in.Args,
	}, nil
}

func (o requestCapabilitiesOp) Authorized(req CapabilityRequest, resp authz.ItemResponse) (CapabilityRequest, error) {
	if len(resp.Data) == 0 {
		return req, nil
	}
	var narrowed struct {
		Capabilities *capability.List `json:"capabilities"`
		Mode         capability.Mode  `json:"mode"`
		ExpiresAt    *time.Time       `json:"expiresAt"`
	}
	if err := json.Unmarshal(resp.Data, &narrowed); err != nil {
		return req, fmt.Errorf("decoding %s approval: %w", o.Method(), err)
	}
	if narrowed.Capabilities != nil {
		req.Capabilities = *narrowed.Capabilities
	}
	if narrowed.Mode != "" {
		req.Mode = narrowed.Mode
	}
	if narrowed.ExpiresAt != nil {
		req.ExpiresAt = narrowed.ExpiresAt
	}
	return req, nil
}

func (o requestCapabilitiesOp) Execute(ctx context.Context, req CapabilityRequest, h *interaction.Handle) (CapabilityGrant, error) {
	appID := h.Snapshot().AppID
	written, err := o.w.caps.StoreGrants(ctx, appID, req.Capabilities)
	if err != nil {
		return CapabilityGrant{}, fmt.Errorf("storing grants: %w", err)
	}
	if req.Mode != "" {
		if err := o.w.caps.SetBehavior(ctx, appID, capability.Behavior{Mode: req.Mode, ExpiresAt: req.ExpiresAt}); err != nil {
			return CapabilityGrant{}, fmt.Errorf("storing behavior: %w", err)
		}
	}
	behavior, err := o.w.caps.Behavior(ctx, appID)
	if err != nil {
		return CapabilityGrant{}, err
	}
	if written == nil {
		written = []string{}
	}
	granted := req.Capabilities
	if granted == nil {
		granted = capability.List{}
	}
	return CapabilityGrant{
		Capabilities: granted,
		StorageKeys:  written,
		Mode:         behavior.Mode,
		ExpiresAt:    behavior.ExpiresAt,
	}, nil
}

func expandKeys(caps []capability.Capability) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, c := range caps {
		for _, k := range capability.ToStorageKeys(c) {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

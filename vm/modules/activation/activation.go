// Package activation registers the on-chain handler for node-activation
// transactions: the permanent, queryable record of a wallet<->node binding
// that the activation service already validated off-chain (burn proof,
// device signature, rate limits) before the transaction was submitted.
package activation

import (
	"encoding/json"
	"fmt"

	"github.com/qnet-chain/qnetd/core"
	"github.com/qnet-chain/qnetd/events"
	"github.com/qnet-chain/qnetd/vm"
)

func init() {
	vm.Register(core.TxNodeActivation, handleActivation)
}

func handleActivation(ctx *vm.Context, payload json.RawMessage) error {
	var p core.NodeActivationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode node activation payload: %w", err)
	}
	if p.NodeID == "" {
		return fmt.Errorf("node_id required")
	}
	if p.Role == "" {
		return fmt.Errorf("role required")
	}
	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventActivationBound,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"node_id": p.NodeID,
				"role":    p.Role,
				"wallet":  ctx.Tx.From,
			},
		})
	}
	return nil
}

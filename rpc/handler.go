package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/qnet-chain/qnetd/core"
	"github.com/qnet-chain/qnetd/indexer"
	"github.com/qnet-chain/qnetd/reputation"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	ledger  *reputation.Ledger
	indexer *indexer.Indexer
	nodeIDs func() []string // returns the current universe of known node IDs, for network_stats
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, ledger *reputation.Ledger, idx *indexer.Indexer, nodeIDs func() []string) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, ledger: ledger, indexer: idx, nodeIDs: nodeIDs}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "get_block_height":
		return okResponse(req.ID, h.bc.Height())

	case "get_block":
		return h.getBlock(req)

	case "get_balance":
		return h.getBalance(req)

	case "get_node_info":
		return h.getNodeInfo(req)

	case "network_stats":
		return h.networkStats(req)

	case "submit_tx":
		return h.submitTx(req)

	case "get_mempool_size":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *core.Microblock
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if block == nil {
		return errResponse(req.ID, CodeInternalError, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "balance": acc.Balance, "nonce": acc.Nonce})
}

func (h *Handler) getNodeInfo(req Request) Response {
	var params struct {
		NodeID string `json:"node_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.NodeID == "" {
		return errResponse(req.ID, CodeInvalidParams, "node_id is required")
	}
	n, err := h.ledger.Get(params.NodeID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, n)
}

func (h *Handler) networkStats(req Request) Response {
	ids := h.nodeIDs()
	stats, err := h.ledger.ComputeStats(ids)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, stats)
}

func (h *Handler) submitTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}

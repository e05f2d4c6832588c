package rpc

import (
	"context"
	"math/big"
	"net/http"

	"viewledger/core/types"
	"viewledger/services/eventindex"
)

type authMode int

const (
	authNone authMode = iota
	authOptional
	authRequired
)

type handlerFunc func(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, *RPCError)

type method struct {
	handler  handlerFunc
	auth     authMode
	mutating bool
}

func (s *Server) routes() map[string]method {
	return map[string]method{
		"paywall_upload":             {handler: s.handlePaywallUpload, auth: authRequired, mutating: true},
		"paywall_unlock":             {handler: s.handlePaywallUnlock, auth: authRequired, mutating: true},
		"paywall_deactivate":         {handler: s.handlePaywallDeactivate, auth: authRequired, mutating: true},
		"paywall_withdrawFees":       {handler: s.handlePaywallWithdrawFees, auth: authRequired, mutating: true},
		"paywall_getVideo":           {handler: s.handlePaywallGetVideo, auth: authOptional},
		"paywall_listVideos":         {handler: s.handlePaywallListVideos},
		"paywall_listByCreator":      {handler: s.handlePaywallListByCreator},
		"paywall_getPlatformBalance": {handler: s.handlePaywallPlatformBalance},
		"paywall_hasAccess":          {handler: s.handlePaywallHasAccess},
		"paywall_getEvents":          {handler: s.handlePaywallGetEvents},
		"bank_getBalance":            {handler: s.handleBankGetBalance},
	}
}

type paywallUploadParams struct {
	ContentRef string `json:"contentRef"`
	Price      string `json:"price"`
}

type paywallUnlockParams struct {
	ID      uint64 `json:"id"`
	Payment string `json:"payment"`
}

type paywallIDParams struct {
	ID uint64 `json:"id"`
}

type paywallListParams struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

type paywallCreatorParams struct {
	Creator string `json:"creator"`
}

type paywallAccessParams struct {
	ID     uint64 `json:"id"`
	Viewer string `json:"viewer"`
}

type paywallEventsParams struct {
	AfterSeq uint64 `json:"afterSeq"`
	Limit    int    `json:"limit"`
	Type     string `json:"type,omitempty"`
	VideoID  uint64 `json:"videoId,omitempty"`
	Address  string `json:"address,omitempty"`
}

type bankBalanceParams struct {
	Address string `json:"address"`
}

func (s *Server) handlePaywallUpload(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, *RPCError) {
	var params paywallUploadParams
	if rpcErr := decodeParams(req, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		return nil, invalidParams(err.Error(), nil)
	}
	res, err := s.ledger.Apply(ctx, &types.Transaction{
		Type:       types.TxTypeUpload,
		From:       caller,
		ContentRef: params.ContentRef,
		Price:      price,
	})
	if err != nil {
		return nil, ledgerError(err)
	}
	return uploadResult{txResult: formatTx(res.TxHash, res.Height), ID: res.VideoID}, nil
}

func (s *Server) handlePaywallUnlock(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, *RPCError) {
	var params paywallUnlockParams
	if rpcErr := decodeParams(req, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	payment, err := parseAmount(params.Payment)
	if err != nil {
		return nil, invalidParams(err.Error(), nil)
	}
	res, err := s.ledger.Apply(ctx, &types.Transaction{
		Type:    types.TxTypeUnlock,
		From:    caller,
		VideoID: params.ID,
		Value:   payment,
	})
	if err != nil {
		return nil, ledgerError(err)
	}
	receipt := res.Unlock
	if receipt == nil {
		return nil, newError(http.StatusInternalServerError, codeServerError, "unlock receipt missing", nil)
	}
	return unlockResult{
		txResult:       formatTx(res.TxHash, res.Height),
		ID:             receipt.VideoID,
		Viewer:         formatAddress(receipt.Viewer),
		Creator:        formatAddress(receipt.Creator),
		Paid:           bigString(receipt.Paid),
		PlatformFee:    bigString(receipt.PlatformFee),
		CreatorEarning: bigString(receipt.CreatorEarning),
		Refund:         bigString(receipt.Refund),
	}, nil
}

func (s *Server) handlePaywallDeactivate(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, *RPCError) {
	var params paywallIDParams
	if rpcErr := decodeParams(req, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	res, err := s.ledger.Apply(ctx, &types.Transaction{
		Type:    types.TxTypeDeactivate,
		From:    caller,
		VideoID: params.ID,
	})
	if err != nil {
		return nil, ledgerError(err)
	}
	return deactivateResult{txResult: formatTx(res.TxHash, res.Height), ID: params.ID}, nil
}

func (s *Server) handlePaywallWithdrawFees(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, *RPCError) {
	var params struct{}
	if rpcErr := decodeParams(req, &params, true); rpcErr != nil {
		return nil, rpcErr
	}
	res, err := s.ledger.Apply(ctx, &types.Transaction{Type: types.TxTypeWithdrawFees, From: caller})
	if err != nil {
		return nil, ledgerError(err)
	}
	return withdrawResult{
		txResult: formatTx(res.TxHash, res.Height),
		Owner:    formatAddress(caller),
		Amount:   bigString(res.Withdrawn),
	}, nil
}

func (s *Server) handlePaywallGetVideo(_ context.Context, caller [20]byte, req *RPCRequest) (interface{}, *RPCError) {
	var params paywallIDParams
	if rpcErr := decodeParams(req, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	view, err := s.ledger.Video(params.ID, caller)
	if err != nil {
		return nil, ledgerError(err)
	}
	return formatVideoView(view), nil
}

func (s *Server) handlePaywallListVideos(_ context.Context, _ [20]byte, req *RPCRequest) (interface{}, *RPCError) {
	var params paywallListParams
	if rpcErr := decodeParams(req, &params, true); rpcErr != nil {
		return nil, rpcErr
	}
	summaries, err := s.ledger.ListVideos(params.Offset, params.Limit)
	if err != nil {
		return nil, ledgerError(err)
	}
	out := make([]videoResult, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, formatVideoSummary(summary))
	}
	return out, nil
}

func (s *Server) handlePaywallListByCreator(_ context.Context, _ [20]byte, req *RPCRequest) (interface{}, *RPCError) {
	var params paywallCreatorParams
	if rpcErr := decodeParams(req, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	creator, err := decodeBech32(params.Creator)
	if err != nil {
		return nil, invalidParams("invalid creator address", err.Error())
	}
	ids, err := s.ledger.VideosByCreator(creator)
	if err != nil {
		return nil, ledgerError(err)
	}
	return ids, nil
}

func (s *Server) handlePaywallPlatformBalance(_ context.Context, _ [20]byte, req *RPCRequest) (interface{}, *RPCError) {
	if len(req.Params) != 0 {
		return nil, invalidParams("no parameters expected", nil)
	}
	balance, err := s.ledger.PlatformBalance()
	if err != nil {
		return nil, ledgerError(err)
	}
	return map[string]string{"balance": bigString(balance)}, nil
}

func (s *Server) handlePaywallHasAccess(_ context.Context, _ [20]byte, req *RPCRequest) (interface{}, *RPCError) {
	var params paywallAccessParams
	if rpcErr := decodeParams(req, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	viewer, err := decodeBech32(params.Viewer)
	if err != nil {
		return nil, invalidParams("invalid viewer address", err.Error())
	}
	ok, err := s.ledger.HasAccess(params.ID, viewer)
	if err != nil {
		return nil, ledgerError(err)
	}
	return map[string]bool{"hasAccess": ok}, nil
}

// handlePaywallGetEvents reads the receipt log directly; filtered queries go
// through the event index when one is configured.
func (s *Server) handlePaywallGetEvents(ctx context.Context, _ [20]byte, req *RPCRequest) (interface{}, *RPCError) {
	var params paywallEventsParams
	if rpcErr := decodeParams(req, &params, true); rpcErr != nil {
		return nil, rpcErr
	}
	limit := params.Limit
	if limit <= 0 || limit > maxEventsLimit {
		limit = maxEventsLimit
	}
	var (
		records []*types.EventRecord
		err     error
	)
	if params.Type != "" || params.VideoID != 0 || params.Address != "" {
		if s.index == nil {
			return nil, invalidParams("event filters require the event index", nil)
		}
		records, err = s.index.Query(ctx, eventindex.Filter{
			Type:     params.Type,
			VideoID:  params.VideoID,
			Address:  params.Address,
			AfterSeq: params.AfterSeq,
			Limit:    limit,
		})
	} else {
		records, err = s.ledger.Events(params.AfterSeq, limit)
	}
	if err != nil {
		return nil, ledgerError(err)
	}
	out := make([]eventResult, 0, len(records))
	for _, rec := range records {
		out = append(out, formatEventRecord(rec))
	}
	return out, nil
}

func (s *Server) handleBankGetBalance(_ context.Context, _ [20]byte, req *RPCRequest) (interface{}, *RPCError) {
	var params bankBalanceParams
	if rpcErr := decodeParams(req, &params, false); rpcErr != nil {
		return nil, rpcErr
	}
	addr, err := decodeBech32(params.Address)
	if err != nil {
		return nil, invalidParams("invalid address", err.Error())
	}
	account, err := s.ledger.Account(addr)
	if err != nil {
		return nil, ledgerError(err)
	}
	balance := account.Balance
	if balance == nil {
		balance = new(big.Int)
	}
	return balanceResult{Address: formatAddress(addr), Balance: balance.String(), Nonce: account.Nonce}, nil
}

package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"viewledger/core/events"
	"viewledger/core/genesis"
	"viewledger/core/state"
	"viewledger/core/types"
	"viewledger/native/bank"
	"viewledger/native/paywall"
	telemetry "viewledger/observability/otel"
	"viewledger/storage"
	"viewledger/storage/trie"
)

var headKey = []byte("viewledger/head")

type headRecord struct {
	Root   common.Hash
	Height uint64
}

// Result describes a committed transition.
type Result struct {
	TxHash    [32]byte
	Height    uint64
	Root      common.Hash
	VideoID   uint64
	Unlock    *paywall.UnlockReceipt
	Withdrawn *big.Int
	Events    []*types.EventRecord
}

// Option configures a Processor.
type Option func(*Processor)

// WithEmitter sets the subscriber that receives committed events.
func WithEmitter(emitter events.Emitter) Option {
	return func(p *Processor) {
		if emitter != nil {
			p.emitter = emitter
		}
	}
}

// WithLogger sets the processor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(p *Processor) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithTracer sets the tracer for transition spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Processor) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithNowFunc overrides the clock.
func WithNowFunc(now func() int64) Option {
	return func(p *Processor) {
		if now != nil {
			p.nowFn = now
		}
	}
}

// WithVault overrides the paywall vault account.
func WithVault(addr [20]byte) Option {
	return func(p *Processor) { p.vault = addr }
}

// WithTransferWrapper decorates the transfer primitive handed to the paywall
// engine, e.g. to inject failures in tests.
func WithTransferWrapper(wrap func(paywall.Transferer) paywall.Transferer) Option {
	return func(p *Processor) { p.wrapTransfer = wrap }
}

// Processor applies transactions one at a time. Each transaction runs against
// a copy of the committed trie; the copy replaces the committed trie only when
// the whole transition succeeded and has been committed to storage.
type Processor struct {
	mu     sync.RWMutex
	db     storage.Database
	trie   *trie.Trie
	height uint64

	emitter      events.Emitter
	logger       *slog.Logger
	metrics      Metrics
	tracer       trace.Tracer
	nowFn        func() int64
	vault        [20]byte
	wrapTransfer func(paywall.Transferer) paywall.Transferer
}

// NewProcessor opens the ledger stored in db, resuming from the last committed
// head when one exists.
func NewProcessor(db storage.Database, opts ...Option) (*Processor, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database must not be nil")
	}
	p := &Processor{
		db:      db,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: noopMetrics{},
		tracer:  otel.Tracer("viewledger/core"),
		nowFn:   func() int64 { return time.Now().Unix() },
		vault:   paywall.DefaultVault,
	}
	for _, opt := range opts {
		opt(p)
	}
	head, ok, err := loadHead(db)
	if err != nil {
		return nil, err
	}
	var root []byte
	if ok {
		root = head.Root.Bytes()
		p.height = head.Height
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("core: open state at %x: %w", root, err)
	}
	p.trie = tr
	p.metrics.SetHeight(p.height)
	return p, nil
}

func loadHead(db storage.Database) (*headRecord, bool, error) {
	data, err := db.Get(headKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("core: load head: %w", err)
	}
	head := new(headRecord)
	if err := rlp.DecodeBytes(data, head); err != nil {
		return nil, false, fmt.Errorf("core: decode head: %w", err)
	}
	return head, true, nil
}

func (p *Processor) storeHead(root common.Hash, height uint64) error {
	encoded, err := rlp.EncodeToBytes(&headRecord{Root: root, Height: height})
	if err != nil {
		return err
	}
	return p.db.Put(headKey, encoded)
}

// Height returns the number of committed transitions, genesis excluded.
func (p *Processor) Height() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.height
}

// Root returns the committed state root.
func (p *Processor) Root() common.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.trie.Root()
}

// Vault returns the account holding attached payments and platform fees.
func (p *Processor) Vault() [20]byte { return p.vault }

// InitGenesis applies spec to an empty ledger. It fails with
// ErrGenesisApplied once any state has been committed.
func (p *Processor) InitGenesis(spec *genesis.Spec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok, err := loadHead(p.db); err != nil {
		return err
	} else if ok {
		return ErrGenesisApplied
	}
	working := p.trie.Copy()
	if err := genesis.Apply(spec, state.NewManager(working)); err != nil {
		return err
	}
	root, err := working.Commit(gethtypes.EmptyRootHash, 0)
	if err != nil {
		return fmt.Errorf("core: commit genesis: %w", err)
	}
	if err := p.storeHead(root, 0); err != nil {
		return fmt.Errorf("core: store genesis head: %w", err)
	}
	p.trie = working
	p.logger.Info("genesis applied",
		slog.String("root", root.Hex()),
		slog.Time("genesisTime", spec.GenesisTimestamp()),
		slog.Int("allocations", len(spec.Allocations())))
	return nil
}

// Apply executes tx as one atomic transition. On any error nothing is
// persisted and no event is published. Apply assigns tx.Nonce from the
// caller's account before hashing.
func (p *Processor) Apply(ctx context.Context, tx *types.Transaction) (*Result, error) {
	if tx == nil {
		return nil, ErrNilTransaction
	}
	_, span := p.tracer.Start(ctx, "core.Apply", trace.WithAttributes(telemetry.TxTypeKey.String(tx.Type.String())))
	defer span.End()

	start := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	res, err := p.apply(tx)
	outcome := outcomeOf(err)
	p.metrics.ObserveTransition(tx.Type.String(), outcome, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		p.logger.Warn("transition rejected",
			slog.String("type", tx.Type.String()),
			slog.String("outcome", outcome),
			slog.Any("error", err))
		return nil, err
	}
	span.SetAttributes(
		telemetry.LedgerHeightKey.Int64(int64(res.Height)),
		telemetry.LedgerRootKey.String(res.Root.Hex()),
	)
	p.metrics.SetHeight(res.Height)
	if res.Unlock != nil {
		p.metrics.ObserveUnlock(res.Unlock.PlatformFee, res.Unlock.CreatorEarning)
	}
	if res.Withdrawn != nil {
		p.metrics.ObserveWithdrawal(res.Withdrawn)
	}
	p.logger.Info("transition committed",
		slog.String("type", tx.Type.String()),
		slog.Uint64("height", res.Height),
		slog.Int("events", len(res.Events)))
	for _, rec := range res.Events {
		p.emitter.Emit(events.Committed{Record: rec})
	}
	return res, nil
}

func (p *Processor) apply(tx *types.Transaction) (*Result, error) {
	var zero [20]byte
	if tx.From == zero {
		return nil, ErrMissingCaller
	}
	value := tx.AttachedValue()
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value", paywall.ErrInvalidInput)
	}
	if value.Sign() > 0 && !tx.Type.Payable() {
		return nil, ErrValueNotAccepted
	}

	working := p.trie.Copy()
	mgr := state.NewManager(working)
	buf := &events.Buffer{}

	caller, err := mgr.GetAccount(tx.From[:])
	if err != nil {
		return nil, err
	}
	tx.Nonce = caller.Nonce
	hash, err := tx.Hash()
	if err != nil {
		return nil, fmt.Errorf("core: hash transaction: %w", err)
	}

	res := &Result{TxHash: hash}
	if err := p.dispatch(mgr, buf, tx, value, res); err != nil {
		buf.Discard()
		return nil, err
	}

	// Reload: the transition may have moved the caller's balance.
	caller, err = mgr.GetAccount(tx.From[:])
	if err != nil {
		return nil, err
	}
	caller.Nonce++
	if err := mgr.PutAccount(tx.From[:], caller); err != nil {
		return nil, err
	}

	height := p.height + 1
	now := p.nowFn()
	staged := buf.Events()
	records := make([]*types.EventRecord, 0, len(staged))
	for _, evt := range staged {
		rec := &types.EventRecord{Height: height, TxHash: hash, Timestamp: now, Event: events.Render(evt)}
		if _, err := mgr.AppendEvent(rec); err != nil {
			return nil, fmt.Errorf("core: log event: %w", err)
		}
		records = append(records, rec)
	}

	root, err := working.Commit(p.trie.Root(), height)
	if err != nil {
		return nil, fmt.Errorf("core: commit state: %w", err)
	}
	if err := p.storeHead(root, height); err != nil {
		return nil, fmt.Errorf("core: store head: %w", err)
	}
	p.trie = working
	p.height = height

	res.Height = height
	res.Root = root
	res.Events = records
	return res, nil
}

func (p *Processor) dispatch(mgr *state.Manager, buf *events.Buffer, tx *types.Transaction, value *big.Int, res *Result) error {
	ledger := bank.NewLedger(mgr)
	ledger.SetEmitter(buf)

	var transfer paywall.Transferer = ledger.WithReason(tx.Type.String())
	if p.wrapTransfer != nil {
		transfer = p.wrapTransfer(transfer)
	}
	engine := paywall.NewEngine()
	engine.SetState(mgr)
	engine.SetTransferer(transfer)
	engine.SetEmitter(buf)
	engine.SetVault(p.vault)
	engine.SetNowFunc(p.nowFn)

	switch tx.Type {
	case types.TxTypeUpload:
		id, err := engine.Upload(tx.From, tx.ContentRef, tx.Price)
		if err != nil {
			return err
		}
		res.VideoID = id
	case types.TxTypeUnlock:
		if value.Sign() > 0 {
			if err := ledger.WithReason("payment").Transfer(tx.From, p.vault, value); err != nil {
				if errors.Is(err, bank.ErrInsufficientFunds) {
					return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
				}
				return err
			}
		}
		receipt, err := engine.Unlock(tx.From, tx.VideoID, value)
		if err != nil {
			return err
		}
		res.VideoID = tx.VideoID
		res.Unlock = receipt
	case types.TxTypeDeactivate:
		if err := engine.Deactivate(tx.From, tx.VideoID); err != nil {
			return err
		}
		res.VideoID = tx.VideoID
	case types.TxTypeWithdrawFees:
		amount, err := engine.WithdrawPlatformFees(tx.From)
		if err != nil {
			return err
		}
		res.Withdrawn = amount
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTxType, tx.Type)
	}
	return nil
}

var rejections = []error{
	paywall.ErrInvalidInput,
	paywall.ErrVideoInactive,
	paywall.ErrInsufficientPayment,
	paywall.ErrAlreadyUnlocked,
	paywall.ErrSelfUnlock,
	paywall.ErrNotAuthorized,
	paywall.ErrNothingToWithdraw,
	paywall.ErrInsufficientBalance,
	paywall.ErrVideoNotFound,
	ErrValueNotAccepted,
	ErrInsufficientFunds,
	ErrUnknownTxType,
	ErrMissingCaller,
}

func outcomeOf(err error) string {
	if err == nil {
		return "committed"
	}
	for _, target := range rejections {
		if errors.Is(err, target) {
			return "rejected"
		}
	}
	return "failed"
}

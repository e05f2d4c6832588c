package paywall

import (
	"errors"
	"math/big"
	"reflect"
	"testing"

	"viewledger/core/events"
	"viewledger/core/types"
)

type grantKey struct {
	id     uint64
	viewer [20]byte
}

type mockState struct {
	nextID   uint64
	videos   map[uint64]*Video
	grants   map[grantKey]int64
	creators map[[20]byte][]uint64
	platform *big.Int
	owner    [20]byte
	hasOwner bool
	writes   int
}

func newMockState() *mockState {
	return &mockState{
		nextID:   1,
		videos:   make(map[uint64]*Video),
		grants:   make(map[grantKey]int64),
		creators: make(map[[20]byte][]uint64),
		platform: big.NewInt(0),
	}
}

func (m *mockState) PaywallNextID() (uint64, error) { return m.nextID, nil }

func (m *mockState) PaywallSetNextID(id uint64) error {
	m.writes++
	m.nextID = id
	return nil
}

func (m *mockState) PaywallVideoGet(id uint64) (*Video, bool, error) {
	video, ok := m.videos[id]
	if !ok {
		return nil, false, nil
	}
	return video.Clone(), true, nil
}

func (m *mockState) PaywallVideoPut(video *Video) error {
	m.writes++
	m.videos[video.ID] = video.Clone()
	return nil
}

func (m *mockState) PaywallGrantExists(id uint64, viewer [20]byte) (bool, error) {
	_, ok := m.grants[grantKey{id, viewer}]
	return ok, nil
}

func (m *mockState) PaywallGrantAt(id uint64, viewer [20]byte) (int64, bool, error) {
	at, ok := m.grants[grantKey{id, viewer}]
	return at, ok, nil
}

func (m *mockState) PaywallGrantPut(id uint64, viewer [20]byte, unlockedAt int64) error {
	m.writes++
	m.grants[grantKey{id, viewer}] = unlockedAt
	return nil
}

func (m *mockState) PaywallCreatorVideos(creator [20]byte) ([]uint64, error) {
	return append([]uint64(nil), m.creators[creator]...), nil
}

func (m *mockState) PaywallCreatorAppend(creator [20]byte, id uint64) error {
	m.writes++
	m.creators[creator] = append(m.creators[creator], id)
	return nil
}

func (m *mockState) PaywallPlatformBalance() (*big.Int, error) {
	return new(big.Int).Set(m.platform), nil
}

func (m *mockState) PaywallSetPlatformBalance(amount *big.Int) error {
	m.writes++
	m.platform = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) PaywallOwner() ([20]byte, bool, error) {
	return m.owner, m.hasOwner, nil
}

type transferCall struct {
	from, to [20]byte
	amount   *big.Int
}

type mockBank struct {
	balances map[[20]byte]*big.Int
	calls    []transferCall
	failTo   map[[20]byte]bool
}

func newMockBank() *mockBank {
	return &mockBank{balances: make(map[[20]byte]*big.Int), failTo: make(map[[20]byte]bool)}
}

func (b *mockBank) balance(addr [20]byte) *big.Int {
	if bal, ok := b.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (b *mockBank) credit(addr [20]byte, amount int64) {
	b.balances[addr] = new(big.Int).Add(b.balance(addr), big.NewInt(amount))
}

func (b *mockBank) Transfer(from, to [20]byte, amount *big.Int) error {
	if b.failTo[to] {
		return errors.New("bank offline")
	}
	if b.balance(from).Cmp(amount) < 0 {
		return errors.New("insufficient funds")
	}
	b.balances[from] = new(big.Int).Sub(b.balance(from), amount)
	b.balances[to] = new(big.Int).Add(b.balance(to), amount)
	b.calls = append(b.calls, transferCall{from: from, to: to, amount: new(big.Int).Set(amount)})
	return nil
}

type captureEmitter struct {
	events []*types.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.events = append(c.events, events.Render(evt))
}

var (
	creatorAddr = [20]byte{0x01}
	viewerAddr  = [20]byte{0x02}
	otherAddr   = [20]byte{0x03}
	ownerAddr   = [20]byte{0x0f}
)

type fixture struct {
	engine  *Engine
	state   *mockState
	bank    *mockBank
	emitter *captureEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	state := newMockState()
	state.owner = ownerAddr
	state.hasOwner = true
	bank := newMockBank()
	emitter := &captureEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetTransferer(bank)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return &fixture{engine: engine, state: state, bank: bank, emitter: emitter}
}

// pay mirrors the processor collecting the attached value into the vault.
func (f *fixture) pay(amount int64) *big.Int {
	f.bank.credit(f.engine.Vault(), amount)
	return big.NewInt(amount)
}

func (f *fixture) upload(t *testing.T, price int64) uint64 {
	t.Helper()
	id, err := f.engine.Upload(creatorAddr, "ipfs://bafy-video", big.NewInt(price))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return id
}

func TestUploadAssignsSequentialIDs(t *testing.T) {
	f := newFixture(t)
	for want := uint64(1); want <= 3; want++ {
		if got := f.upload(t, 1000); got != want {
			t.Fatalf("expected id %d, got %d", want, got)
		}
	}
	ids, err := f.engine.VideosByCreator(creatorAddr)
	if err != nil {
		t.Fatalf("by creator: %v", err)
	}
	if !reflect.DeepEqual(ids, []uint64{1, 2, 3}) {
		t.Fatalf("unexpected creator index %v", ids)
	}
	video, ok, err := f.state.PaywallVideoGet(2)
	if err != nil || !ok {
		t.Fatalf("video 2 missing: %v", err)
	}
	if video.Status != VideoStatusActive || video.TotalEarnings.Sign() != 0 || video.ViewCount != 0 {
		t.Fatalf("unexpected fresh video %+v", video)
	}
	if len(f.emitter.events) != 3 {
		t.Fatalf("expected 3 upload events, got %d", len(f.emitter.events))
	}
	evt := f.emitter.events[0]
	if evt.Type != EventTypeVideoUploaded {
		t.Fatalf("unexpected event type %s", evt.Type)
	}
	if !reflect.DeepEqual(evt.Keys(), []string{"id", "creator", "contentRef", "price", "createdAt"}) {
		t.Fatalf("unexpected attribute order %v", evt.Keys())
	}
	if v, _ := evt.Attr("createdAt"); v != "1700000000" {
		t.Fatalf("unexpected createdAt %s", v)
	}
}

func TestUploadRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		ref   string
		price *big.Int
	}{
		{name: "empty ref", ref: "", price: big.NewInt(1)},
		{name: "zero price", ref: "cid", price: big.NewInt(0)},
		{name: "negative price", ref: "cid", price: big.NewInt(-1)},
		{name: "nil price", ref: "cid", price: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.engine.Upload(creatorAddr, tc.ref, tc.price); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	if f.state.writes != 0 {
		t.Fatalf("rejected uploads wrote state")
	}
	if f.state.nextID != 1 {
		t.Fatalf("next id advanced to %d", f.state.nextID)
	}
}

func TestUploadStoresContentRefVerbatim(t *testing.T) {
	f := newFixture(t)
	for _, ref := range []string{"  cid123\n", "   ", "ipfs://bafy\tpart"} {
		id, err := f.engine.Upload(creatorAddr, ref, big.NewInt(10))
		if err != nil {
			t.Fatalf("upload %q: %v", ref, err)
		}
		view, err := f.engine.Video(id, creatorAddr)
		if err != nil {
			t.Fatalf("video %d: %v", id, err)
		}
		if view.ContentRef != ref {
			t.Fatalf("content ref changed: stored %q, got %q", ref, view.ContentRef)
		}
		evt := f.emitter.events[len(f.emitter.events)-1]
		if v, _ := evt.Attr("contentRef"); v != ref {
			t.Fatalf("upload event ref changed: %q", v)
		}
	}
}

func TestUnlockExactPriceSplitsPayment(t *testing.T) {
	f := newFixture(t)
	id := f.upload(t, 1000)

	receipt, err := f.engine.Unlock(viewerAddr, id, f.pay(1000))
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if receipt.PlatformFee.Int64() != 60 || receipt.CreatorEarning.Int64() != 940 || receipt.Refund.Sign() != 0 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if got := f.bank.balance(creatorAddr); got.Int64() != 940 {
		t.Fatalf("creator balance %s", got)
	}
	if got := f.bank.balance(f.engine.Vault()); got.Int64() != 60 {
		t.Fatalf("vault balance %s", got)
	}
	balance, err := f.engine.PlatformBalance()
	if err != nil || balance.Int64() != 60 {
		t.Fatalf("platform balance %v %v", balance, err)
	}
	video, _, _ := f.state.PaywallVideoGet(id)
	if video.TotalEarnings.Int64() != 940 || video.ViewCount != 1 {
		t.Fatalf("unexpected totals %+v", video)
	}
	access, err := f.engine.HasAccess(id, viewerAddr)
	if err != nil || !access {
		t.Fatalf("expected access after unlock: %v", err)
	}
}

func TestVideoReportsGrantTime(t *testing.T) {
	f := newFixture(t)
	id := f.upload(t, 1000)

	before, err := f.engine.Video(id, viewerAddr)
	if err != nil {
		t.Fatalf("video: %v", err)
	}
	if before.HasAccess || before.UnlockedAt != 0 || before.ContentRef != "" {
		t.Fatalf("locked view leaked access data %+v", before)
	}

	f.engine.SetNowFunc(func() int64 { return 1_700_000_500 })
	if _, err := f.engine.Unlock(viewerAddr, id, f.pay(1000)); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	after, err := f.engine.Video(id, viewerAddr)
	if err != nil {
		t.Fatalf("video: %v", err)
	}
	if !after.HasAccess || after.UnlockedAt != 1_700_000_500 {
		t.Fatalf("unexpected unlocked view %+v", after)
	}

	creatorView, err := f.engine.Video(id, creatorAddr)
	if err != nil {
		t.Fatalf("video: %v", err)
	}
	if !creatorView.HasAccess || creatorView.UnlockedAt != 0 {
		t.Fatalf("creator view should have implicit access without a grant time %+v", creatorView)
	}
}

func TestUnlockOverpaymentRefundsExcess(t *testing.T) {
	f := newFixture(t)
	id := f.upload(t, 1000)
	f.emitter.events = nil

	receipt, err := f.engine.Unlock(viewerAddr, id, f.pay(1500))
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if receipt.PlatformFee.Int64() != 60 || receipt.CreatorEarning.Int64() != 940 || receipt.Refund.Int64() != 500 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if got := f.bank.balance(viewerAddr); got.Int64() != 500 {
		t.Fatalf("viewer refund %s", got)
	}
	if got := f.bank.balance(f.engine.Vault()); got.Int64() != 60 {
		t.Fatalf("vault should hold exactly the platform fee, got %s", got)
	}
	if len(f.emitter.events) != 1 {
		t.Fatalf("expected one unlock event, got %d", len(f.emitter.events))
	}
	evt := f.emitter.events[0]
	if !reflect.DeepEqual(evt.Keys(), []string{"id", "viewer", "creator", "paid", "platformFee", "creatorEarning", "refund"}) {
		t.Fatalf("unexpected attribute order %v", evt.Keys())
	}
	if v, _ := evt.Attr("paid"); v != "1500" {
		t.Fatalf("event should carry the attached amount, got %s", v)
	}
	if v, _ := evt.Attr("refund"); v != "500" {
		t.Fatalf("event should carry the refund, got %s", v)
	}
}

func TestUnlockRejections(t *testing.T) {
	t.Run("double unlock", func(t *testing.T) {
		f := newFixture(t)
		id := f.upload(t, 100)
		if _, err := f.engine.Unlock(viewerAddr, id, f.pay(100)); err != nil {
			t.Fatalf("first unlock: %v", err)
		}
		if _, err := f.engine.Unlock(viewerAddr, id, f.pay(100)); !errors.Is(err, ErrAlreadyUnlocked) {
			t.Fatalf("expected ErrAlreadyUnlocked, got %v", err)
		}
	})
	t.Run("self unlock", func(t *testing.T) {
		f := newFixture(t)
		id := f.upload(t, 100)
		if _, err := f.engine.Unlock(creatorAddr, id, f.pay(100)); !errors.Is(err, ErrSelfUnlock) {
			t.Fatalf("expected ErrSelfUnlock, got %v", err)
		}
	})
	t.Run("unknown video", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.engine.Unlock(viewerAddr, 42, f.pay(100)); !errors.Is(err, ErrVideoInactive) {
			t.Fatalf("expected ErrVideoInactive, got %v", err)
		}
	})
	t.Run("deactivated video", func(t *testing.T) {
		f := newFixture(t)
		id := f.upload(t, 100)
		if err := f.engine.Deactivate(creatorAddr, id); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		if _, err := f.engine.Unlock(viewerAddr, id, f.pay(100)); !errors.Is(err, ErrVideoInactive) {
			t.Fatalf("expected ErrVideoInactive, got %v", err)
		}
	})
	t.Run("inactive wins over underpayment", func(t *testing.T) {
		f := newFixture(t)
		id := f.upload(t, 100)
		if err := f.engine.Deactivate(creatorAddr, id); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		if _, err := f.engine.Unlock(viewerAddr, id, f.pay(1)); !errors.Is(err, ErrVideoInactive) {
			t.Fatalf("expected ErrVideoInactive, got %v", err)
		}
	})
	t.Run("underpayment wins over prior grant", func(t *testing.T) {
		f := newFixture(t)
		id := f.upload(t, 100)
		if _, err := f.engine.Unlock(viewerAddr, id, f.pay(100)); err != nil {
			t.Fatalf("unlock: %v", err)
		}
		if _, err := f.engine.Unlock(viewerAddr, id, f.pay(99)); !errors.Is(err, ErrInsufficientPayment) {
			t.Fatalf("expected ErrInsufficientPayment, got %v", err)
		}
	})
}

func TestUnlockInsufficientPaymentLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	id := f.upload(t, 1000)
	writes := f.state.writes
	emitted := len(f.emitter.events)

	if _, err := f.engine.Unlock(viewerAddr, id, f.pay(999)); !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
	if f.state.writes != writes {
		t.Fatalf("state written on rejected unlock")
	}
	if len(f.bank.calls) != 0 {
		t.Fatalf("transfers issued on rejected unlock: %v", f.bank.calls)
	}
	if len(f.emitter.events) != emitted {
		t.Fatalf("event emitted on rejected unlock")
	}
	if access, _ := f.engine.HasAccess(id, viewerAddr); access {
		t.Fatalf("viewer granted access without payment")
	}
}

func TestUnlockTransferFailures(t *testing.T) {
	t.Run("creator payout", func(t *testing.T) {
		f := newFixture(t)
		id := f.upload(t, 1000)
		f.bank.failTo[creatorAddr] = true
		if _, err := f.engine.Unlock(viewerAddr, id, f.pay(1000)); !errors.Is(err, ErrTransferFailed) {
			t.Fatalf("expected ErrTransferFailed, got %v", err)
		}
	})
	t.Run("refund", func(t *testing.T) {
		f := newFixture(t)
		id := f.upload(t, 1000)
		f.bank.failTo[viewerAddr] = true
		if _, err := f.engine.Unlock(viewerAddr, id, f.pay(1500)); !errors.Is(err, ErrRefundFailed) {
			t.Fatalf("expected ErrRefundFailed, got %v", err)
		}
	})
}

func TestDeactivate(t *testing.T) {
	f := newFixture(t)
	id := f.upload(t, 100)
	f.emitter.events = nil

	if err := f.engine.Deactivate(otherAddr, id); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := f.engine.Deactivate(creatorAddr, 99); !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("expected ErrVideoNotFound, got %v", err)
	}
	if err := f.engine.Deactivate(creatorAddr, id); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := f.engine.Deactivate(creatorAddr, id); err != nil {
		t.Fatalf("repeat deactivate should succeed: %v", err)
	}
	video, _, _ := f.state.PaywallVideoGet(id)
	if video.Status != VideoStatusDeactivated {
		t.Fatalf("unexpected status %s", video.Status)
	}
	if len(f.emitter.events) != 2 {
		t.Fatalf("expected an event per deactivate call, got %d", len(f.emitter.events))
	}
	if !reflect.DeepEqual(f.emitter.events[0].Keys(), []string{"id", "caller"}) {
		t.Fatalf("unexpected attribute order %v", f.emitter.events[0].Keys())
	}
}

func TestCreatorHasImplicitAccess(t *testing.T) {
	f := newFixture(t)
	id := f.upload(t, 100)

	access, err := f.engine.HasAccess(id, creatorAddr)
	if err != nil || !access {
		t.Fatalf("creator should have access: %v", err)
	}
	if _, ok := f.state.grants[grantKey{id, creatorAddr}]; ok {
		t.Fatalf("creator grant should not be stored")
	}
	view, err := f.engine.Video(id, creatorAddr)
	if err != nil {
		t.Fatalf("video: %v", err)
	}
	if view.ContentRef != "ipfs://bafy-video" || !view.HasAccess {
		t.Fatalf("creator view should expose the ref: %+v", view)
	}
	if access, _ := f.engine.HasAccess(77, creatorAddr); access {
		t.Fatalf("unknown id should report no access")
	}
}

func TestVideoViewBlanksContentRef(t *testing.T) {
	f := newFixture(t)
	id := f.upload(t, 100)

	for _, caller := range [][20]byte{{}, otherAddr} {
		view, err := f.engine.Video(id, caller)
		if err != nil {
			t.Fatalf("video: %v", err)
		}
		if view.ContentRef != "" || view.HasAccess {
			t.Fatalf("ref leaked to %x", caller)
		}
		if view.Price.Int64() != 100 || view.Creator != creatorAddr {
			t.Fatalf("unexpected view %+v", view)
		}
	}
	if _, err := f.engine.Video(5, otherAddr); !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("expected ErrVideoNotFound, got %v", err)
	}
}

func TestWithdrawPlatformFees(t *testing.T) {
	f := newFixture(t)
	id := f.upload(t, 1000)
	if _, err := f.engine.Unlock(viewerAddr, id, f.pay(1000)); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	f.emitter.events = nil

	if _, err := f.engine.WithdrawPlatformFees(otherAddr); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	amount, err := f.engine.WithdrawPlatformFees(ownerAddr)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Int64() != 60 {
		t.Fatalf("unexpected withdrawal %s", amount)
	}
	if got := f.bank.balance(ownerAddr); got.Int64() != 60 {
		t.Fatalf("owner balance %s", got)
	}
	if got := f.bank.balance(f.engine.Vault()); got.Sign() != 0 {
		t.Fatalf("vault should be empty, got %s", got)
	}
	if _, err := f.engine.WithdrawPlatformFees(ownerAddr); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw, got %v", err)
	}
	if len(f.emitter.events) != 1 || f.emitter.events[0].Type != EventTypeFeesWithdrawn {
		t.Fatalf("unexpected events %+v", f.emitter.events)
	}
}

func TestWithdrawWithoutOwnerIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.state.hasOwner = false
	f.state.owner = [20]byte{}
	if _, err := f.engine.WithdrawPlatformFees([20]byte{}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestListVideosPagination(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.upload(t, int64(100+i))
	}
	cases := []struct {
		offset, limit uint64
		want          []uint64
	}{
		{offset: 0, limit: 2, want: []uint64{1, 2}},
		{offset: 1, limit: 10, want: []uint64{2, 3}},
		{offset: 3, limit: 5, want: []uint64{}},
		{offset: 10, limit: 1, want: []uint64{}},
		{offset: 0, limit: 0, want: []uint64{}},
		{offset: 2, limit: ^uint64(0), want: []uint64{3}},
	}
	for _, tc := range cases {
		page, err := f.engine.ListVideos(tc.offset, tc.limit)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		got := make([]uint64, 0, len(page))
		for _, summary := range page {
			got = append(got, summary.ID)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("offset %d limit %d: want %v got %v", tc.offset, tc.limit, tc.want, got)
		}
	}
}

func TestListVideosHonoursLargeLimit(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 620; i++ {
		f.upload(t, int64(1+i))
	}
	page, err := f.engine.ListVideos(0, 600)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 600 || page[599].ID != 600 {
		t.Fatalf("expected 600 videos ending at id 600, got %d", len(page))
	}
	rest, err := f.engine.ListVideos(600, 1000)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rest) != 20 || rest[0].ID != 601 {
		t.Fatalf("expected the remaining 20 videos, got %d", len(rest))
	}
}

func TestEngineWithoutStateFails(t *testing.T) {
	engine := NewEngine()
	if _, err := engine.Upload(creatorAddr, "cid", big.NewInt(1)); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected ErrNilState, got %v", err)
	}
	if _, err := engine.ListVideos(0, 1); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected ErrNilState, got %v", err)
	}
}

package transfer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custopay/transfer-relay/internal/client"
	"github.com/custopay/transfer-relay/internal/ledger"
	"github.com/custopay/transfer-relay/internal/model"
	"github.com/custopay/transfer-relay/internal/notify"
	"github.com/custopay/transfer-relay/internal/store"
)

// chainStub implements ChainClient with canned responses and call counting.
type chainStub struct {
	mu sync.Mutex

	nativeBalances map[solana.PublicKey]uint64
	tokenBalances  map[string]client.TokenBalanceResult
	blockhash      solana.Hash
	blockhashErr   error
	blockHeight    uint64
	submitErr      error
	submitted      []*solana.Transaction
	statuses       []client.SignatureStatus
	statusErr      error
	feeLamports    uint64

	calls map[string]int
}

func newChainStub() *chainStub {
	return &chainStub{
		nativeBalances: make(map[solana.PublicKey]uint64),
		tokenBalances:  make(map[string]client.TokenBalanceResult),
		blockhash:      solana.Hash(solana.NewWallet().PublicKey()),
		calls:          make(map[string]int),
	}
}

func (c *chainStub) count(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name]++
}

func (c *chainStub) callCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *chainStub) totalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

func (c *chainStub) NativeBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	c.count("NativeBalance")
	return c.nativeBalances[address], nil
}

func (c *chainStub) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (client.TokenBalanceResult, error) {
	c.count("TokenBalance")
	return c.tokenBalances[owner.String()], nil
}

func (c *chainStub) AccountExists(ctx context.Context, owner, mint solana.PublicKey) (bool, error) {
	c.count("AccountExists")
	return c.tokenBalances[owner.String()].Exists, nil
}

func (c *chainStub) CurrentBlockHeight(ctx context.Context) (uint64, error) {
	c.count("CurrentBlockHeight")
	return c.blockHeight, nil
}

func (c *chainStub) LatestBlockhash(ctx context.Context) (solana.Hash, uint64, error) {
	c.count("LatestBlockhash")
	if c.blockhashErr != nil {
		return solana.Hash{}, 0, c.blockhashErr
	}
	return c.blockhash, 100, nil
}

func (c *chainStub) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	c.count("Submit")
	if c.submitErr != nil {
		return solana.Signature{}, c.submitErr
	}
	c.mu.Lock()
	c.submitted = append(c.submitted, tx)
	c.mu.Unlock()
	if len(tx.Signatures) > 0 {
		return tx.Signatures[0], nil
	}
	return solana.Signature{}, nil
}

func (c *chainStub) Status(ctx context.Context, sig solana.Signature) (client.SignatureStatus, error) {
	c.count("Status")
	if c.statusErr != nil {
		return client.SignatureStatus{}, c.statusErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.statuses) == 0 {
		return client.SignatureStatus{Found: false}, nil
	}
	status := c.statuses[0]
	if len(c.statuses) > 1 {
		c.statuses = c.statuses[1:]
	}
	return status, nil
}

func (c *chainStub) TransactionFee(ctx context.Context, sig solana.Signature) (uint64, error) {
	c.count("TransactionFee")
	return c.feeLamports, nil
}

// memRepo mirrors the postgres conditional-update semantics in memory.
type memRepo struct {
	mu      sync.Mutex
	txs     map[uuid.UUID]*model.LedgerTransaction
	created int

	// failNext makes the next TransitionStatus call return this error once,
	// simulating a storage hiccup.
	failNext error
}

func newMemRepo() *memRepo {
	return &memRepo{txs: make(map[uuid.UUID]*model.LedgerTransaction)}
}

var _ store.Repository = (*memRepo)(nil)

func (r *memRepo) CreateTransaction(ctx context.Context, tx *model.LedgerTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tx
	r.txs[tx.ID] = &cp
	r.created++
	return nil
}

func (r *memRepo) FindTransactionByID(ctx context.Context, id uuid.UUID) (*model.LedgerTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, model.ErrTransactionNotFound
	}
	cp := *tx
	cp.Metadata = copyMetadata(tx.Metadata)
	return &cp, nil
}

func (r *memRepo) FindTransactionsByOwner(ctx context.Context, ownerID string, req model.ListRequest) ([]model.LedgerTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.LedgerTransaction
	for _, tx := range r.txs {
		if tx.SenderID == ownerID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (r *memRepo) TransitionStatus(ctx context.Context, id uuid.UUID, ownerID string, from, to model.Status, evidence model.StatusEvidence, completedAt *time.Time) (*model.LedgerTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return nil, err
	}
	tx, ok := r.txs[id]
	if !ok || tx.SenderID != ownerID || tx.Status != from || tx.Metadata.Has(to) {
		return nil, model.ErrStatusConflict
	}
	tx.Status = to
	tx.Metadata.StatusUpdates[to] = evidence
	if completedAt != nil {
		tx.CompletedAt = completedAt
	}
	tx.UpdatedAt = time.Now().UTC()
	cp := *tx
	cp.Metadata = copyMetadata(tx.Metadata)
	return &cp, nil
}

func (r *memRepo) FindProcessingOlderThan(ctx context.Context, cutoff time.Time) ([]model.LedgerTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.LedgerTransaction
	for _, tx := range r.txs {
		if tx.Status == model.StatusProcessing && tx.UpdatedAt.Before(cutoff) {
			cp := *tx
			cp.Metadata = copyMetadata(tx.Metadata)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (r *memRepo) FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]model.LedgerTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.LedgerTransaction
	for _, tx := range r.txs {
		if tx.Status == model.StatusPending && tx.CreatedAt.Before(cutoff) {
			cp := *tx
			cp.Metadata = copyMetadata(tx.Metadata)
			out = append(out, cp)
		}
	}
	return out, nil
}

func copyMetadata(m model.Metadata) model.Metadata {
	cp := model.Metadata{StatusUpdates: make(map[model.Status]model.StatusEvidence, len(m.StatusUpdates))}
	for k, v := range m.StatusUpdates {
		cp.StatusUpdates[k] = v
	}
	return cp
}

type dispatcherStub struct {
	mu       sync.Mutex
	calls    int
	outcomes []notify.Outcome
	reasons  []string
}

func (d *dispatcherStub) Notify(ctx context.Context, ownerID string, summary model.Summary, outcome notify.Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.outcomes = append(d.outcomes, outcome)
	d.reasons = append(d.reasons, summary.Reason)
}

func (d *dispatcherStub) Close() {}

// rig wires a full transfer stack over stubs with real keypairs.
type rig struct {
	chain      *chainStub
	repo       *memRepo
	dispatcher *dispatcherStub
	ledger     *ledger.Service
	envelopes  *EnvelopeRegistry
	oracle     *BalanceOracle
	builder    *Builder
	completion *Completion
	tracker    *Tracker

	feePayer  *FeePayerAccount
	sender    *solana.Wallet
	recipient *solana.Wallet
	asset     model.Asset
}

func newRig(t *testing.T) *rig {
	t.Helper()

	feePayerWallet := solana.NewWallet()
	sender := solana.NewWallet()
	recipient := solana.NewWallet()
	mint := solana.NewWallet().PublicKey()

	asset := model.Asset{Symbol: "USDC", Mint: mint.String(), Decimals: 6}
	assets := model.AssetRegistry{"USDC": asset}

	chain := newChainStub()
	chain.nativeBalances[feePayerWallet.PublicKey()] = 1_000_000_000
	chain.tokenBalances[sender.PublicKey().String()] = client.TokenBalanceResult{Exists: true, Raw: 50_000_000, Decimals: 6}
	chain.tokenBalances[recipient.PublicKey().String()] = client.TokenBalanceResult{Exists: false}

	repo := newMemRepo()
	dispatcher := &dispatcherStub{}
	logger := zap.NewNop()
	ledgerSvc := ledger.NewService(repo, dispatcher, logger)
	envelopes := NewEnvelopeRegistry()
	feePayer := NewFeePayerAccountFromKey(feePayerWallet.PrivateKey)
	oracle := NewBalanceOracle(chain, feePayer.PublicKey(), 100_000)

	builder := NewBuilder(chain, oracle, feePayer, ledgerSvc, envelopes, assets, BuilderConfig{
		MaxAmount:   "1000",
		EnvelopeTTL: time.Minute,
	}, logger)

	tracker := NewTracker(chain, ledgerSvc, 3*time.Second, logger)
	completion := NewCompletion(chain, ledgerSvc, envelopes, nil, logger)

	return &rig{
		chain:      chain,
		repo:       repo,
		dispatcher: dispatcher,
		ledger:     ledgerSvc,
		envelopes:  envelopes,
		oracle:     oracle,
		builder:    builder,
		completion: completion,
		tracker:    tracker,
		feePayer:   feePayer,
		sender:     sender,
		recipient:  recipient,
		asset:      asset,
	}
}

func (r *rig) intent(amount string) model.TransferIntent {
	return model.TransferIntent{
		SenderAddress:    r.sender.PublicKey().String(),
		RecipientAddress: r.recipient.PublicKey().String(),
		Amount:           amount,
		AssetID:          "USDC",
		RequestedBy:      "user-1",
	}
}

// signEnvelope produces the sender's signature over the envelope payload,
// the way the client device would.
func (r *rig) signEnvelope(t *testing.T, envelope *model.TransactionEnvelope) string {
	t.Helper()
	tx := decodeEnvelope(t, envelope)
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to marshal message: %v", err)
	}
	sig, err := r.sender.PrivateKey.Sign(msg)
	if err != nil {
		t.Fatalf("failed to sign message: %v", err)
	}
	return sig.String()
}

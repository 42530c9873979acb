package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/escrow-payments/escrow-server/pkg/cache"
	"github.com/escrow-payments/escrow-server/pkg/database/query"
	"github.com/escrow-payments/escrow-server/pkg/escrow/auth"
	"github.com/escrow-payments/escrow-server/pkg/escrow/common"
	"github.com/escrow-payments/escrow-server/pkg/escrow/data"
	"github.com/escrow-payments/escrow-server/pkg/escrow/data/ledger"
	"github.com/escrow-payments/escrow-server/pkg/escrow/data/record"
	"github.com/escrow-payments/escrow-server/pkg/escrow/derive"
	"github.com/escrow-payments/escrow-server/pkg/metrics"
	sync_util "github.com/escrow-payments/escrow-server/pkg/sync"
)

const (
	metricsStructName = "escrow.engine"

	escrowCreatedEventName  = "EscrowCreated"
	escrowResolvedEventName = "EscrowResolved"
)

// Resolved records are immutable, so they're safe to serve from a local
// cache without a consistency story.
var resolvedRecordCache = cache.NewCache(1000)

// Engine drives the escrow state machine: NonExistent -> Active -> Resolved.
// Every mutation is authorized by the acting party's signature, guarded by a
// per-record striped lock, and committed atomically against the data layer.
type Engine struct {
	log   *logrus.Entry
	data  data.Provider
	auth  *auth.SignatureVerifier
	locks *sync_util.StripedLock
}

func New(data data.Provider) *Engine {
	return &Engine{
		log:   logrus.StandardLogger().WithField("type", "escrow/engine"),
		data:  data,
		auth:  auth.NewSignatureVerifier(),
		locks: sync_util.NewStripedLock(64),
	}
}

// Create opens a new escrow between a buyer and a seller and funds its vault
// in one atomic step. On any failure no record exists and no funds have moved.
func (e *Engine) Create(ctx context.Context, params *CreateParams) (*record.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Create")
	defer tracer.End()

	log := e.log.WithFields(logrus.Fields{
		"method": "Create",
		"buyer":  params.Buyer.PublicKey().ToBase58(),
		"seller": params.Seller.PublicKey().ToBase58(),
	})

	if params.Amount == 0 {
		return nil, ErrInvalidAmount
	}
	if len(params.ItemLabel) > record.MaxItemLabelLength {
		return nil, ErrInvalidItemLabel
	}

	if err := e.auth.Authenticate(ctx, params.Buyer, params.Message(), params.Signature); err != nil {
		return nil, ErrUnauthorized
	}

	accounts, err := common.GetEscrowAccounts(params.Buyer, params.Seller)
	if err != nil {
		if errors.Is(err, derive.ErrDerivationCollision) {
			return nil, ErrDerivationCollision
		}

		log.WithError(err).Warn("failure deriving escrow accounts")
		return nil, err
	}

	stateAddress := accounts.State.PublicKey().ToBase58()
	vaultAddress := accounts.Vault.PublicKey().ToBase58()

	log = log.WithField("escrow", stateAddress)

	mu := e.locks.Get([]byte(stateAddress))
	mu.Lock()
	defer mu.Unlock()

	_, err = e.data.GetEscrowRecordByAddress(ctx, stateAddress)
	if err == nil {
		return nil, ErrRecordExists
	} else if !errors.Is(err, record.ErrRecordNotFound) {
		log.WithError(err).Warn("failure checking for existing escrow record")
		return nil, err
	}

	// Reject an underfunded create before opening the vault, so the failure
	// path mutates nothing. The guarded transfer below remains the source of
	// truth if the balance changes under us.
	fundingAccount, err := e.data.GetTokenAccountByAddress(ctx, params.FundingAccount)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil, ErrInsufficientFunds
		}

		log.WithError(err).Warn("failure getting funding account")
		return nil, err
	}
	if fundingAccount.Balance < params.Amount {
		return nil, ErrInsufficientFunds
	}

	escrowRecord := &record.Record{
		Address: stateAddress,
		Bump:    accounts.StateBump,

		VaultAddress: vaultAddress,
		VaultBump:    accounts.VaultBump,

		Buyer:  params.Buyer.PublicKey().ToBase58(),
		Seller: params.Seller.PublicKey().ToBase58(),

		Amount:    params.Amount,
		ItemLabel: params.ItemLabel,

		IsCompleted: false,

		CreatedAt: time.Now(),
	}

	err = e.data.ExecuteInTx(ctx, func(ctx context.Context) error {
		err := e.data.CreateTokenAccount(ctx, &ledger.AccountRecord{
			Address:   vaultAddress,
			Authority: stateAddress,
			Balance:   0,
			CreatedAt: time.Now(),
		})
		if err != nil {
			return err
		}

		err = e.data.TransferTokens(
			ctx,
			params.FundingAccount,
			vaultAddress,
			params.Buyer.PublicKey().ToBase58(),
			params.Amount,
		)
		if err != nil {
			return err
		}

		return e.data.PutEscrowRecord(ctx, escrowRecord)
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return nil, ErrInsufficientFunds
		case errors.Is(err, ledger.ErrInvalidAuthority):
			return nil, ErrUnauthorized
		case errors.Is(err, record.ErrRecordExists), errors.Is(err, ledger.ErrAccountExists):
			return nil, ErrRecordExists
		case errors.Is(err, ledger.ErrAccountNotFound):
			return nil, ErrInsufficientFunds
		}

		log.WithError(err).Warn("failure committing escrow creation")
		return nil, err
	}

	metrics.RecordEvent(ctx, escrowCreatedEventName, map[string]interface{}{
		"escrow": stateAddress,
		"amount": params.Amount,
	})

	return escrowRecord, nil
}

// Complete releases the escrowed funds to the seller's recipient account and
// resolves the record. Only the record's seller may complete.
func (e *Engine) Complete(ctx context.Context, params *CompleteParams) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Complete")
	defer tracer.End()

	log := e.log.WithFields(logrus.Fields{
		"method": "Complete",
		"escrow": params.EscrowAddress,
	})

	if err := e.auth.Authenticate(ctx, params.Seller, params.Message(), params.Signature); err != nil {
		return ErrUnauthorized
	}

	return e.resolve(
		ctx,
		log,
		params.EscrowAddress,
		params.RecipientAccount,
		"complete",
		func(r *record.Record) bool {
			return r.Seller == params.Seller.PublicKey().ToBase58()
		},
	)
}

// Cancel returns the escrowed funds to the buyer's refund account and
// resolves the record. Only the record's buyer may cancel.
func (e *Engine) Cancel(ctx context.Context, params *CancelParams) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Cancel")
	defer tracer.End()

	log := e.log.WithFields(logrus.Fields{
		"method": "Cancel",
		"escrow": params.EscrowAddress,
	})

	if err := e.auth.Authenticate(ctx, params.Buyer, params.Message(), params.Signature); err != nil {
		return ErrUnauthorized
	}

	return e.resolve(
		ctx,
		log,
		params.EscrowAddress,
		params.RefundAccount,
		"cancel",
		func(r *record.Record) bool {
			return r.Buyer == params.Buyer.PublicKey().ToBase58()
		},
	)
}

// resolve is the shared exactly-once settlement path for Complete and Cancel.
// The full vault balance moves to the destination under the record's derived
// authority, and the record flips to resolved, in one transaction.
func (e *Engine) resolve(
	ctx context.Context,
	log *logrus.Entry,
	escrowAddress, destination, outcome string,
	isAuthorized func(*record.Record) bool,
) error {
	mu := e.locks.Get([]byte(escrowAddress))
	mu.Lock()
	defer mu.Unlock()

	escrowRecord, err := e.data.GetEscrowRecordByAddress(ctx, escrowAddress)
	if err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			return ErrRecordNotFound
		}

		log.WithError(err).Warn("failure getting escrow record")
		return err
	}

	if !escrowRecord.IsActive() {
		return ErrAlreadyResolved
	}

	if !isAuthorized(escrowRecord) {
		return ErrUnauthorized
	}

	err = e.data.ExecuteInTx(ctx, func(ctx context.Context) error {
		err := e.data.TransferTokens(
			ctx,
			escrowRecord.VaultAddress,
			destination,
			escrowRecord.Address,
			escrowRecord.Amount,
		)
		if err != nil {
			return err
		}

		return e.data.MarkEscrowRecordResolved(ctx, escrowAddress)
	})
	if err != nil {
		switch {
		case errors.Is(err, record.ErrRecordAlreadyResolved):
			return ErrAlreadyResolved
		case errors.Is(err, ledger.ErrAccountNotFound):
			return ErrRecordNotFound
		case errors.Is(err, ledger.ErrInsufficientFunds):
			// The vault can only be short if something already drained it,
			// which means the record should be resolved too.
			return ErrAlreadyResolved
		}

		log.WithError(err).Warn("failure committing escrow resolution")
		return err
	}

	metrics.RecordEvent(ctx, escrowResolvedEventName, map[string]interface{}{
		"escrow":  escrowAddress,
		"amount":  escrowRecord.Amount,
		"outcome": outcome,
	})

	return nil
}

// GetRecord returns the escrow record at the provided derived address.
func (e *Engine) GetRecord(ctx context.Context, escrowAddress string) (*record.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetRecord")
	defer tracer.End()

	if cached, ok := resolvedRecordCache.Retrieve(escrowAddress); ok {
		return cached.(*record.Record).Clone(), nil
	}

	escrowRecord, err := e.data.GetEscrowRecordByAddress(ctx, escrowAddress)
	if err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if !escrowRecord.IsActive() {
		resolvedRecordCache.Insert(escrowAddress, escrowRecord.Clone(), 1)
	}

	return escrowRecord, nil
}

// GetRecordByVault returns the escrow record owning the provided vault
// address.
func (e *Engine) GetRecordByVault(ctx context.Context, vaultAddress string) (*record.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetRecordByVault")
	defer tracer.End()

	escrowRecord, err := e.data.GetEscrowRecordByVault(ctx, vaultAddress)
	if err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return escrowRecord, nil
}

// GetRecordsByBuyer returns a page of the buyer's escrow records.
func (e *Engine) GetRecordsByBuyer(ctx context.Context, buyer string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*record.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetRecordsByBuyer")
	defer tracer.End()

	records, err := e.data.GetAllEscrowRecordsByBuyer(ctx, buyer, cursor, limit, direction)
	if err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return records, nil
}

// GetRecordCountByBuyer returns the total number of escrow records, active
// or resolved, where the provided account is the buyer.
func (e *Engine) GetRecordCountByBuyer(ctx context.Context, buyer string) (uint64, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetRecordCountByBuyer")
	defer tracer.End()

	return e.data.GetEscrowRecordCountByBuyer(ctx, buyer)
}

// GetRecordsBySeller returns a page of the seller's escrow records.
func (e *Engine) GetRecordsBySeller(ctx context.Context, seller string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*record.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetRecordsBySeller")
	defer tracer.End()

	records, err := e.data.GetAllEscrowRecordsBySeller(ctx, seller, cursor, limit, direction)
	if err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return records, nil
}

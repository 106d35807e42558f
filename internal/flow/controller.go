package flow

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go-alias-scanner/internal/models"
	"go-alias-scanner/internal/remote"
	"go-alias-scanner/internal/repository"
	"go-alias-scanner/internal/scan"
	"go-alias-scanner/internal/services"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrBusy             = errors.New("a transfer is already in progress")
	ErrNoValidatedAlias = errors.New("no validated alias to transfer to")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrNoSession        = errors.New("no scan session attached")
	ErrNoTransfers      = errors.New("transfers are not configured")
	ErrNotCompleted     = errors.New("transfer did not complete")
)

// Classifier reads an alias from a cropped frame
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (remote.Classification, error)
}

// AliasValidator resolves an alias to its account
type AliasValidator interface {
	Validate(ctx context.Context, alias string) (*remote.AliasInfo, error)
}

// TransferExecutor sends a transfer
type TransferExecutor interface {
	Execute(ctx context.Context, req remote.TransferRequest) (*remote.TransferResponse, error)
}

// PinChecker confirms a transfer
type PinChecker interface {
	Verify(pin string) error
}

// ReceiptRenderer renders a transfer receipt
type ReceiptRenderer interface {
	Render(receipt services.TransferReceipt) ([]byte, error)
}

// HistoryStore keeps the scan audit log and the transfer history
type HistoryStore interface {
	RecordScan(ctx context.Context, record *models.ScanRecord) error
	SaveTransfer(ctx context.Context, record *models.TransferRecord) error
	GetTransfer(ctx context.Context, id string) (*models.TransferRecord, error)
}

// ScanSession is the part of scan.Session the controller drives
type ScanSession interface {
	ResetDebounce(ctx context.Context) error
	ResolveSelection(ctx context.Context, id uuid.UUID) (scan.Outcome, error)
}

// Logger is the subset of the structured logger the controller writes to
type Logger interface {
	Debug(message string, fields ...map[string]interface{})
	Info(message string, fields ...map[string]interface{})
	Warn(message string, fields ...map[string]interface{})
	Error(message string, err error, fields ...map[string]interface{})
}

// Dependencies wires the controller to its collaborators. Classifier,
// Validator and Transfers may be nil, disabling the matching step.
type Dependencies struct {
	Classifier Classifier
	Validator  AliasValidator
	Transfers  TransferExecutor
	Pins       PinChecker
	Receipts   ReceiptRenderer
	History    HistoryStore
	Logger     Logger

	DeviceID        string
	DefaultCategory string
	RemoteTimeout   time.Duration
	Now             func() time.Time
}

// Controller is the consumer of scan outcomes. It implements scan.Observer.
type Controller struct {
	deps      Dependencies
	sessionID string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	session      ScanSession
	current      Event
	account      *remote.AliasInfo
	generation   uint64
	transferring bool
	subscribers  map[int]chan Event
	nextSub      int
	closed       bool
}

// NewController creates a controller in the scanning state
func NewController(deps Dependencies) *Controller {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.RemoteTimeout <= 0 {
		deps.RemoteTimeout = 20 * time.Second
	}
	if deps.History == nil {
		deps.History = repository.NewMemoryHistory(0)
	}
	if deps.Pins == nil {
		deps.Pins = services.NewPinVerifier("", "")
	}
	if deps.Receipts == nil {
		deps.Receipts = services.NewReceiptService("", "")
	}
	if deps.DefaultCategory == "" {
		deps.DefaultCategory = "varios"
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		deps:        deps,
		sessionID:   uuid.NewString(),
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[int]chan Event),
	}
	c.current = Event{State: StateScanning, At: deps.Now()}
	return c
}

// Attach connects the session whose outcomes the controller observes
func (c *Controller) Attach(session ScanSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

// SessionID identifies this controller's scans in the audit log
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Snapshot returns the latest event
func (c *Controller) Snapshot() Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Subscribe returns a channel receiving every event from now on, starting
// with the current one. Events are dropped for a subscriber whose buffer is
// full. Call cancel to unsubscribe.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = ch
	ch <- c.current

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(sub)
			}
		})
	}
}

// OnScanOutcome handles one published outcome
func (c *Controller) OnScanOutcome(o scan.Outcome) {
	c.audit(o)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.current.State.acceptsOutcomes() {
		c.debug("outcome ignored", map[string]interface{}{"kind": o.Kind.String(), "state": string(c.current.State)})
		return
	}

	outcome := o
	switch o.Kind {
	case scan.OutcomeQRCode:
		c.transition(Event{State: StateQRFound, Outcome: &outcome, Payload: o.Payload})
	case scan.OutcomeBarcode:
		c.transition(Event{State: StateBarcodeFound, Outcome: &outcome, Payload: o.Payload})
	case scan.OutcomeMultipleCodes:
		c.transition(Event{State: StateChoosingCode, Outcome: &outcome, Codes: o.Codes})
	case scan.OutcomeNeedsRemoteClassification:
		if c.deps.Classifier == nil {
			c.transition(Event{State: StateScanning, Outcome: &outcome, Message: "text recognition disabled"})
			return
		}
		c.transition(Event{State: StateAnalyzing, Outcome: &outcome})
		c.goRemote(c.generation, func(ctx context.Context, gen uint64) { c.classify(ctx, gen, o.Image) })
	}
}

func (c *Controller) classify(ctx context.Context, gen uint64, img image.Image) {
	result, err := c.deps.Classifier.Classify(ctx, img)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.current.State != StateAnalyzing {
		return
	}

	if err != nil {
		c.logError("text recognition failed", err, nil)
		c.transition(Event{State: StateScanning, Message: err.Error()})
		return
	}
	if !result.Found {
		c.debug("no alias in frame", map[string]interface{}{"raw": result.Raw})
		c.transition(Event{State: StateScanning})
		return
	}

	if c.deps.Validator == nil {
		c.account = &remote.AliasInfo{Identifier: result.Alias}
		c.transition(Event{State: StateAliasResolved, Alias: result.Alias, Account: c.account})
		return
	}

	c.transition(Event{State: StateValidating, Alias: result.Alias})
	c.goRemote(gen, func(ctx context.Context, gen uint64) { c.validate(ctx, gen, result.Alias) })
}

func (c *Controller) validate(ctx context.Context, gen uint64, alias string) {
	info, err := c.deps.Validator.Validate(ctx, alias)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.current.State != StateValidating {
		return
	}

	if err != nil {
		event := Event{State: StateAliasNotFound, Alias: alias}
		if !errors.Is(err, remote.ErrAliasNotFound) {
			c.logError("alias validation failed", err, map[string]interface{}{"alias": alias})
			event.Message = err.Error()
		}
		c.transition(event)
		return
	}

	c.info("alias resolved", map[string]interface{}{"alias": alias, "account_kind": info.AccountKind()})
	c.account = info
	c.transition(Event{State: StateAliasResolved, Alias: alias, Account: info})
}

// goRemote runs fn on its own goroutine bounded by the remote timeout.
// Must be called with c.mu held.
func (c *Controller) goRemote(gen uint64, fn func(ctx context.Context, gen uint64)) {
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.deps.RemoteTimeout)
		defer cancel()
		fn(ctx, gen)
	}()
}

// Select resolves a pending multi-code choice
func (c *Controller) Select(ctx context.Context, id uuid.UUID) (Event, error) {
	c.mu.Lock()
	session := c.session
	state := c.current.State
	c.mu.Unlock()

	if state != StateChoosingCode {
		return Event{}, scan.ErrSelectionNotPending
	}
	if session == nil {
		return Event{}, ErrNoSession
	}

	outcome, err := session.ResolveSelection(ctx, id)
	if err != nil {
		return Event{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.State != StateChoosingCode {
		return c.current, nil
	}

	switch outcome.Kind {
	case scan.OutcomeQRCode:
		c.transition(Event{State: StateQRFound, Outcome: &outcome, Payload: outcome.Payload})
	case scan.OutcomeBarcode:
		c.transition(Event{State: StateBarcodeFound, Outcome: &outcome, Payload: outcome.Payload})
	default:
		return Event{}, fmt.Errorf("unexpected selection outcome %s", outcome.Kind)
	}
	return c.current, nil
}

// Reset returns to scanning, drops any in-flight recognition and clears the
// session's debounce state
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	if c.transferring {
		c.mu.Unlock()
		return ErrBusy
	}
	c.generation++
	c.account = nil
	c.transition(Event{State: StateScanning})
	session := c.session
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := session.ResetDebounce(ctx); err != nil && !errors.Is(err, scan.ErrSessionClosed) {
		return err
	}
	return nil
}

// Transfer sends amount to the validated alias after checking pin
func (c *Controller) Transfer(ctx context.Context, amount float64, category, pin string) (*models.TransferRecord, error) {
	c.mu.Lock()
	if c.current.State != StateAliasResolved || c.account == nil {
		c.mu.Unlock()
		return nil, ErrNoValidatedAlias
	}
	if c.transferring {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.transferring = true
	account := c.account
	alias := c.current.Alias
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.transferring = false
		c.mu.Unlock()
	}()

	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := c.deps.Pins.Verify(pin); err != nil {
		c.warn("transfer pin rejected", map[string]interface{}{"alias": alias})
		return nil, err
	}
	if c.deps.Transfers == nil {
		return nil, ErrNoTransfers
	}
	if category == "" {
		category = c.deps.DefaultCategory
	}

	record := &models.TransferRecord{
		TransferID:  uuid.NewString(),
		Alias:       alias,
		Beneficiary: account.DisplayName(),
		Bank:        account.DisplayBank(),
		BankID:      account.BankID,
		AccountKind: account.AccountKind(),
		Account:     account.Account(),
		TaxDocument: account.CUIT,
		Amount:      amount,
		Category:    category,
		CreatedAt:   c.deps.Now().UTC(),
	}

	resp, err := c.deps.Transfers.Execute(ctx, remote.NewTransferRequest(account, amount, category, c.deps.DeviceID, pin))
	if err != nil {
		record.Status = models.TransferFailed
		record.Error = err.Error()
		c.saveTransfer(record)
		c.logError("transfer failed", err, map[string]interface{}{"alias": alias, "transfer_id": record.TransferID})
		return nil, err
	}

	record.Status = models.TransferCompleted
	record.AuthorizationID = resp.AuthorizationID
	record.TransactionID = resp.TransactionID
	c.saveTransfer(record)
	c.info("transfer completed", map[string]interface{}{"alias": alias, "transfer_id": record.TransferID, "amount": amount})

	c.mu.Lock()
	c.transition(Event{State: StateTransferred, Alias: alias, Account: account, Transfer: record})
	c.mu.Unlock()

	return record, nil
}

// Receipt renders the PDF receipt of a completed transfer
func (c *Controller) Receipt(ctx context.Context, id string) ([]byte, error) {
	record, err := c.deps.History.GetTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != models.TransferCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCompleted, id, record.Status)
	}

	return c.deps.Receipts.Render(services.TransferReceipt{
		ID:              record.TransferID,
		CreatedAt:       record.CreatedAt,
		Alias:           record.Alias,
		Beneficiary:     record.Beneficiary,
		Bank:            record.Bank,
		AccountKind:     record.AccountKind,
		Account:         record.Account,
		TaxDocument:     record.TaxDocument,
		Amount:          record.Amount,
		Category:        record.Category,
		AuthorizationID: record.AuthorizationID,
		TransactionID:   record.TransactionID,
	})
}

// Close stops in-flight remote calls and closes every subscription
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
}

// transition replaces the current event and broadcasts it.
// Must be called with c.mu held.
func (c *Controller) transition(e Event) {
	e.Seq = c.current.Seq + 1
	e.At = c.deps.Now()
	c.current = e

	for _, ch := range c.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

func (c *Controller) audit(o scan.Outcome) {
	record := &models.ScanRecord{
		SessionID: c.sessionID,
		Kind:      o.Kind.String(),
		Payload:   o.Payload,
		CodeCount: len(o.Codes),
		CreatedAt: o.At.UTC(),
	}
	if o.Kind == scan.OutcomeQRCode || o.Kind == scan.OutcomeBarcode {
		record.CodeCount = 1
	}

	ctx, cancel := context.WithTimeout(c.ctx, 2*time.Second)
	defer cancel()
	if err := c.deps.History.RecordScan(ctx, record); err != nil {
		c.logError("failed to record scan", err, map[string]interface{}{"kind": record.Kind})
	}
}

func (c *Controller) saveTransfer(record *models.TransferRecord) {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if err := c.deps.History.SaveTransfer(ctx, record); err != nil {
		c.logError("failed to save transfer", err, map[string]interface{}{"transfer_id": record.TransferID})
	}
}

func (c *Controller) debug(msg string, fields map[string]interface{}) {
	if c.deps.Logger != nil {
		c.deps.Logger.Debug(msg, fields)
	}
}

func (c *Controller) info(msg string, fields map[string]interface{}) {
	if c.deps.Logger != nil {
		c.deps.Logger.Info(msg, fields)
	}
}

func (c *Controller) warn(msg string, fields map[string]interface{}) {
	if c.deps.Logger != nil {
		c.deps.Logger.Warn(msg, fields)
	}
}

func (c *Controller) logError(msg string, err error, fields map[string]interface{}) {
	if c.deps.Logger != nil {
		c.deps.Logger.Error(msg, err, fields)
	}
}

package tokens

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/krazyTry/spl-toolkit/flow"
)

var ErrNotReviewing = errors.New("no transfer under review")

// TransferSession walks a transfer through form, review and confirmation:
// Idle -Submit-> Loading -Review-> Reviewing -Confirm-> Loading -> Success | Error.
// Confirm is refused while the quote carries an error-level warning.
type TransferSession struct {
	client  *Client
	machine *flow.Machine

	mu     sync.Mutex
	params TransferParams
	quote  *TransferQuote
	result *TxResult
}

func (c *Client) NewTransferSession() *TransferSession {
	return &TransferSession{client: c, machine: flow.New()}
}

func (s *TransferSession) State() flow.State {
	return s.machine.State()
}

func (s *TransferSession) Err() error {
	return s.machine.Err()
}

func (s *TransferSession) Quote() *TransferQuote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quote
}

func (s *TransferSession) Result() *TxResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Review validates the form and moves to Reviewing with the quote.
func (s *TransferSession) Review(ctx context.Context, p TransferParams) (*TransferQuote, error) {
	if _, err := s.machine.Fire(flow.Submit); err != nil {
		return nil, err
	}
	quote, _, err := s.client.QuoteTransfer(ctx, p)
	if err != nil {
		_ = s.machine.Fail(err)
		return nil, err
	}
	if _, err = s.machine.Fire(flow.Review); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.params = p
	s.quote = quote
	s.mu.Unlock()
	return quote, nil
}

// Confirm signs and sends the reviewed transfer.
func (s *TransferSession) Confirm(ctx context.Context, wallet *solana.Wallet) (*TxResult, error) {
	s.mu.Lock()
	p, quote := s.params, s.quote
	s.mu.Unlock()

	if s.machine.State() != flow.Reviewing || quote == nil {
		return nil, ErrNotReviewing
	}
	if w, blocked := quote.Blocked(); blocked {
		return nil, &TxError{Kind: KindNonTransferable, Op: OpTransfer, Err: errors.New(w.Message)}
	}
	if _, err := s.machine.Fire(flow.Confirm); err != nil {
		return nil, err
	}

	result, err := s.client.Transfer(ctx, p, wallet)
	if err != nil {
		_ = s.machine.Fail(err)
		return result, err
	}
	if _, err = s.machine.Fire(flow.Succeed); err != nil {
		return result, err
	}

	s.mu.Lock()
	s.result = result
	s.mu.Unlock()
	return result, nil
}

// Reset returns to Idle, dropping the quote.
func (s *TransferSession) Reset() error {
	if _, err := s.machine.Fire(flow.Reset); err != nil {
		return err
	}
	s.mu.Lock()
	s.params = TransferParams{}
	s.quote = nil
	s.result = nil
	s.mu.Unlock()
	return nil
}

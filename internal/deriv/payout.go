package deriv

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// QueryPayout asks the venue for the current payout on a 1-unit contract
// and returns the client payout percent: ((payout/ask)-1)*100 minus the
// house markup. Callers fall back to money.DefaultClientPayout on error.
func (g *Gateway) QueryPayout(ctx context.Context, token, currency, contractType, symbol string, markup float64) (float64, error) {
	deadline := time.Now().Add(g.cfg.PayoutTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, g.endpointURL(), nil)
	if err != nil {
		return 0, fmt.Errorf("payout dial: %w", err)
	}
	defer ws.Close()

	if _, err := g.roundTrip(ws, authorizeRequest{Authorize: token}, "authorize", deadline); err != nil {
		return 0, fmt.Errorf("payout authorize: %w", err)
	}

	f, err := g.roundTrip(ws, proposalRequest{
		Proposal:     1,
		Amount:       1,
		Basis:        "stake",
		ContractType: contractType,
		Currency:     currency,
		Duration:     1,
		DurationUnit: "t",
		Symbol:       symbol,
	}, "proposal", deadline)
	if err != nil {
		return 0, fmt.Errorf("payout proposal: %w", err)
	}
	if f.Proposal == nil || f.Proposal.AskPrice <= 0 {
		return 0, fmt.Errorf("payout proposal: empty reply")
	}

	gross := (f.Proposal.Payout/f.Proposal.AskPrice - 1) * 100
	return gross - markup, nil
}

// Authorize validates a token against the venue and returns the account
// list tied to it, so callers can resolve the right trading account
func (g *Gateway) Authorize(ctx context.Context, token string) ([]Account, error) {
	deadline := time.Now().Add(g.cfg.PayoutTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, g.endpointURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("authorize dial: %w", err)
	}
	defer ws.Close()

	f, err := g.roundTrip(ws, authorizeRequest{Authorize: token}, "authorize", deadline)
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	if f.Authorize == nil {
		return nil, fmt.Errorf("authorize: empty reply")
	}
	return f.Authorize.AccountList, nil
}

// Balance is the venue account balance
type Balance struct {
	Amount   float64
	Currency string
	LoginID  string
}

// QueryBalance authorizes and reads the account balance
func (g *Gateway) QueryBalance(ctx context.Context, token string) (*Balance, error) {
	deadline := time.Now().Add(g.cfg.PayoutTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, g.endpointURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("balance dial: %w", err)
	}
	defer ws.Close()

	if _, err := g.roundTrip(ws, authorizeRequest{Authorize: token}, "authorize", deadline); err != nil {
		return nil, fmt.Errorf("balance authorize: %w", err)
	}

	f, err := g.roundTrip(ws, balanceRequest{Balance: 1}, "balance", deadline)
	if err != nil {
		return nil, fmt.Errorf("balance query: %w", err)
	}
	if f.Balance == nil {
		return nil, fmt.Errorf("balance query: empty reply")
	}

	return &Balance{
		Amount:   f.Balance.Balance,
		Currency: f.Balance.Currency,
		LoginID:  f.Balance.LoginID,
	}, nil
}

package deriv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// ContractParams describe one digit-parity contract: always duration 1
// tick on the given symbol
type ContractParams struct {
	Currency     string
	ContractType string // DIGITEVEN | DIGITODD
	Stake        float64
	Symbol       string
	ClientRef    string // local correlation id, logged not sent

	// Bought, when set, runs as soon as the venue confirms the buy, before
	// settlement monitoring begins. The trade row flips PENDING→ACTIVE here.
	Bought func(contractID string, payout float64)
}

// Settlement is the final outcome of an executed contract
type Settlement struct {
	Status     string // WON | LOST
	Profit     float64
	EntryPrice float64
	ExitPrice  float64
	ContractID string
	Payout     float64 // quoted payout minus stake, captured at proposal time
	AskPrice   float64
}

// ExecuteContract runs one full contract transaction on a dedicated
// short-lived connection: authorize, propose, buy at the quoted ask,
// subscribe the open contract and wait for settlement. Any venue error
// frame fails the trade. The transaction deadline is ContractTimeout; once
// the contract is only being monitored it extends to MonitorTimeout.
func (g *Gateway) ExecuteContract(ctx context.Context, token string, p ContractParams) (*Settlement, error) {
	deadline := time.Now().Add(g.cfg.ContractTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	// The pre-buy leg gets its own tighter budget
	if d := time.Now().Add(g.cfg.TradeTimeout); g.cfg.TradeTimeout > 0 && d.Before(deadline) {
		deadline = d
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, g.endpointURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("trade dial: %w", err)
	}
	defer ws.Close()

	log := g.logger.With().Str("symbol", p.Symbol).Str("side", p.ContractType).
		Str("ref", p.ClientRef).Logger()

	if _, err := g.roundTrip(ws, authorizeRequest{Authorize: token}, "authorize", deadline); err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}

	prop, err := g.roundTrip(ws, proposalRequest{
		Proposal:     1,
		Amount:       p.Stake,
		Basis:        "stake",
		ContractType: p.ContractType,
		Currency:     p.Currency,
		Duration:     1,
		DurationUnit: "t",
		Symbol:       p.Symbol,
	}, "proposal", deadline)
	if err != nil {
		return nil, fmt.Errorf("proposal: %w", err)
	}
	if prop.Proposal == nil || prop.Proposal.ID == "" {
		return nil, fmt.Errorf("proposal: empty reply")
	}

	quotedReturn := prop.Proposal.Payout - p.Stake

	// One buy per proposal id, at the quoted ask price
	buy, err := g.roundTrip(ws, buyRequest{Buy: prop.Proposal.ID, Price: prop.Proposal.AskPrice}, "buy", deadline)
	if err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	if buy.Buy == nil || buy.Buy.ContractID == 0 {
		return nil, fmt.Errorf("buy: empty reply")
	}

	log.Info().Int64("contract_id", buy.Buy.ContractID).Float64("stake", p.Stake).
		Float64("ask", prop.Proposal.AskPrice).Msg("contract bought")

	if p.Bought != nil {
		p.Bought(fmt.Sprintf("%d", buy.Buy.ContractID), quotedReturn)
	}

	// Bought: from here on we only monitor, so the longer timeout applies
	monitorDeadline := time.Now().Add(g.cfg.MonitorTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(monitorDeadline) {
		monitorDeadline = d
	}

	if err := ws.WriteJSON(openContractRequest{
		ProposalOpenContract: 1,
		ContractID:           buy.Buy.ContractID,
		Subscribe:            1,
	}); err != nil {
		return nil, fmt.Errorf("open contract subscribe: %w", err)
	}

	for {
		f, err := g.readFrame(ws, monitorDeadline)
		if err != nil {
			return nil, fmt.Errorf("contract monitor: %w", err)
		}
		if f.Error != nil {
			return nil, fmt.Errorf("contract monitor: venue error %s: %s", f.Error.Code, f.Error.Message)
		}
		if f.MsgType != "proposal_open_contract" || f.OpenContract == nil {
			continue
		}
		poc := f.OpenContract
		if poc.IsSold != 1 {
			continue
		}

		status := "LOST"
		if poc.Profit > 0 {
			status = "WON"
		}

		entry := poc.EntrySpot
		if entry == 0 {
			entry = poc.EntryTick
		}
		exit := poc.ExitSpot
		if exit == 0 {
			exit = poc.CurrentSpot
		}

		log.Info().Str("status", status).Float64("profit", poc.Profit).Msg("contract settled")

		return &Settlement{
			Status:     status,
			Profit:     poc.Profit,
			EntryPrice: entry,
			ExitPrice:  exit,
			ContractID: fmt.Sprintf("%d", buy.Buy.ContractID),
			Payout:     quotedReturn,
			AskPrice:   prop.Proposal.AskPrice,
		}, nil
	}
}

// roundTrip sends one request and waits for its reply type, surfacing any
// venue error frame
func (g *Gateway) roundTrip(ws *websocket.Conn, req interface{}, wantType string, deadline time.Time) (*frame, error) {
	if err := ws.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	for {
		f, err := g.readFrame(ws, deadline)
		if err != nil {
			return nil, err
		}
		if f.Error != nil {
			return nil, fmt.Errorf("venue error %s: %s", f.Error.Code, f.Error.Message)
		}
		if f.MsgType == wantType {
			return f, nil
		}
		// unrelated frame (ping echo etc), keep waiting
	}
}

func (g *Gateway) readFrame(ws *websocket.Conn, deadline time.Time) (*frame, error) {
	if err := ws.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	return &f, nil
}

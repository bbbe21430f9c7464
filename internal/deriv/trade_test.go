package deriv

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"zeenix-trading-bot/config"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// floatEquals compares two floats with tolerance
func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// fakeVenue speaks just enough of the wire protocol to settle one
// winning contract: authorize, proposal, buy, then a sold open-contract
// frame on the subscription
func fakeVenue(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		for {
			var req map[string]interface{}
			if err := ws.ReadJSON(&req); err != nil {
				return
			}
			switch {
			case req["authorize"] != nil:
				_ = ws.WriteJSON(map[string]interface{}{
					"msg_type":  "authorize",
					"authorize": map[string]interface{}{"loginid": "CR1", "currency": "USD"},
				})
			case req["proposal"] != nil:
				_ = ws.WriteJSON(map[string]interface{}{
					"msg_type": "proposal",
					"proposal": map[string]interface{}{"id": "prop-1", "ask_price": 1.00, "payout": 1.92},
				})
			case req["buy"] != nil:
				_ = ws.WriteJSON(map[string]interface{}{
					"msg_type": "buy",
					"buy":      map[string]interface{}{"contract_id": 4242, "buy_price": 1.00},
				})
			case req["proposal_open_contract"] != nil:
				_ = ws.WriteJSON(map[string]interface{}{
					"msg_type": "proposal_open_contract",
					"proposal_open_contract": map[string]interface{}{
						"is_sold":    1,
						"profit":     0.92,
						"entry_tick": 1234.56,
						"exit_spot":  1234.58,
					},
				})
			}
		}
	}))
}

// ============================================================================
// TEST: Contract transaction against a scripted venue
// ============================================================================

// TestExecuteContract_BuyCallbackBeforeSettlement verifies the Bought
// hook fires with the contract id as soon as the buy is confirmed, while
// the contract is still being monitored
func TestExecuteContract_BuyCallbackBeforeSettlement(t *testing.T) {
	srv := fakeVenue(t)
	defer srv.Close()

	g := NewGateway(config.DerivConfig{
		Endpoint:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		AppID:           "1",
		ContractTimeout: 5 * time.Second,
		MonitorTimeout:  5 * time.Second,
	}, zerolog.Nop())

	var boughtID string
	var boughtPayout float64
	returned := false

	settlement, err := g.ExecuteContract(context.Background(), "tok", ContractParams{
		Currency:     "USD",
		ContractType: "DIGITEVEN",
		Stake:        1.00,
		Symbol:       "R_100",
		ClientRef:    "ref-1",
		Bought: func(contractID string, payout float64) {
			if returned {
				t.Error("buy hook must run before ExecuteContract returns")
			}
			boughtID = contractID
			boughtPayout = payout
		},
	})
	returned = true
	if err != nil {
		t.Fatalf("ExecuteContract: %v", err)
	}

	if boughtID != "4242" {
		t.Errorf("buy hook contract id = %q, want 4242", boughtID)
	}
	// quoted payout 1.92 minus the 1.00 stake
	if !floatEquals(boughtPayout, 0.92, 0.001) {
		t.Errorf("buy hook payout = %.2f, want 0.92", boughtPayout)
	}

	if settlement.Status != "WON" || settlement.ContractID != "4242" {
		t.Errorf("settlement = %+v, want WON on contract 4242", settlement)
	}
	if !floatEquals(settlement.Profit, 0.92, 0.001) {
		t.Errorf("profit = %.2f, want 0.92", settlement.Profit)
	}
	if !floatEquals(settlement.EntryPrice, 1234.56, 0.001) || !floatEquals(settlement.ExitPrice, 1234.58, 0.001) {
		t.Errorf("entry/exit = %.2f/%.2f, want 1234.56/1234.58", settlement.EntryPrice, settlement.ExitPrice)
	}
}

package deriv

import "encoding/json"

// Outbound frames. The venue speaks JSON over websocket; every request is
// a flat object keyed by its operation name.

type authorizeRequest struct {
	Authorize string `json:"authorize"`
}

type ticksHistoryRequest struct {
	TicksHistory    string `json:"ticks_history"`
	Subscribe       int    `json:"subscribe,omitempty"`
	Count           int    `json:"count"`
	End             string `json:"end"`
	Style           string `json:"style"`
	AdjustStartTime int    `json:"adjust_start_time"`
}

type proposalRequest struct {
	Proposal     int     `json:"proposal"`
	Amount       float64 `json:"amount"`
	Basis        string  `json:"basis"`
	ContractType string  `json:"contract_type"`
	Currency     string  `json:"currency"`
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"duration_unit"`
	Symbol       string  `json:"symbol"`
	Subscribe    int     `json:"subscribe,omitempty"`
}

type buyRequest struct {
	Buy   string  `json:"buy"`
	Price float64 `json:"price"`
}

type openContractRequest struct {
	ProposalOpenContract int    `json:"proposal_open_contract"`
	ContractID           int64  `json:"contract_id"`
	Subscribe            int    `json:"subscribe"`
}

type forgetRequest struct {
	Forget string `json:"forget"`
}

type pingRequest struct {
	Ping int `json:"ping"`
}

type balanceRequest struct {
	Balance int `json:"balance"`
}

// frame is the envelope every inbound message shares
type frame struct {
	MsgType      string           `json:"msg_type"`
	Error        *apiError        `json:"error,omitempty"`
	Subscription *subscription    `json:"subscription,omitempty"`
	Authorize    *authorizeReply  `json:"authorize,omitempty"`
	History      *historyReply    `json:"history,omitempty"`
	Tick         *tickReply       `json:"tick,omitempty"`
	Proposal     *proposalReply   `json:"proposal,omitempty"`
	Buy          *buyReply        `json:"buy,omitempty"`
	OpenContract *openContract    `json:"proposal_open_contract,omitempty"`
	Balance      *balanceReply    `json:"balance,omitempty"`
	EchoReq      json.RawMessage  `json:"echo_req,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type subscription struct {
	ID string `json:"id"`
}

type authorizeReply struct {
	LoginID     string    `json:"loginid"`
	Currency    string    `json:"currency"`
	Balance     float64   `json:"balance"`
	Email       string    `json:"email"`
	AccountList []Account `json:"account_list"`
}

type historyReply struct {
	Prices []float64 `json:"prices"`
	Times  []int64   `json:"times"`
}

type tickReply struct {
	Quote  float64 `json:"quote"`
	Epoch  int64   `json:"epoch"`
	Symbol string  `json:"symbol"`
}

type proposalReply struct {
	ID       string  `json:"id"`
	AskPrice float64 `json:"ask_price"`
	Payout   float64 `json:"payout"`
}

type buyReply struct {
	ContractID int64   `json:"contract_id"`
	BuyPrice   float64 `json:"buy_price"`
	EntrySpot  float64 `json:"entry_spot"`
}

type openContract struct {
	IsSold      int     `json:"is_sold"`
	Profit      float64 `json:"profit"`
	ExitSpot    float64 `json:"exit_spot"`
	CurrentSpot float64 `json:"current_spot"`
	EntryTick   float64 `json:"entry_tick"`
	EntrySpot   float64 `json:"entry_spot"`
}

type balanceReply struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
	LoginID  string  `json:"loginid"`
}

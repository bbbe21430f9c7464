package deriv

import "strings"

// Account is one entry of the venue's account_list. The venue encodes
// is_virtual as 0/1.
type Account struct {
	Token     string  `json:"token"`
	Currency  string  `json:"currency"`
	LoginID   string  `json:"loginid"`
	IsVirtual int     `json:"is_virtual"`
	Balance   float64 `json:"balance"`
}

func (a Account) virtual() bool { return a.IsVirtual != 0 }

// Selection is the account a trade should run against. Token may override
// the one the caller held.
type Selection struct {
	Token     string
	Currency  string
	LoginID   string
	IsVirtual bool
}

// ResolveAccount picks the account matching the user's trade-currency
// preference. "demo" selects the virtual account; otherwise real accounts
// are preferred with a matching currency, then nonzero balance, then the
// first real one. Falls back to the provided token when the list gives
// nothing better.
func ResolveAccount(accounts []Account, providedToken, requestedCurrency string) Selection {
	fallback := Selection{Token: providedToken, Currency: requestedCurrency}
	if len(accounts) == 0 {
		return fallback
	}

	wantDemo := strings.EqualFold(requestedCurrency, "demo")

	if wantDemo {
		for _, a := range accounts {
			if a.virtual() {
				return toSelection(a, providedToken)
			}
		}
		return fallback
	}

	var real []Account
	for _, a := range accounts {
		if !a.virtual() {
			real = append(real, a)
		}
	}
	if len(real) == 0 {
		return fallback
	}

	for _, a := range real {
		if strings.EqualFold(a.Currency, requestedCurrency) {
			return toSelection(a, providedToken)
		}
	}
	for _, a := range real {
		if a.Balance > 0 {
			return toSelection(a, providedToken)
		}
	}
	return toSelection(real[0], providedToken)
}

func toSelection(a Account, providedToken string) Selection {
	sel := Selection{
		Token:     a.Token,
		Currency:  a.Currency,
		LoginID:   a.LoginID,
		IsVirtual: a.virtual(),
	}
	if sel.Token == "" {
		sel.Token = providedToken // list rows without tokens keep the caller's
	}
	return sel
}

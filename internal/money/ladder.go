// Package money implements the stake ladder: a Soros compounding
// progression after wins and a profile-driven martingale recovery after
// losses. Everything here is a pure function of its inputs; the ladder
// never reads clocks, state, or I/O.
package money

import (
	"math"
)

// Profile selects the martingale recovery aggressiveness
type Profile string

const (
	ProfileConservador Profile = "conservador"
	ProfileModerado    Profile = "moderado"
	ProfileAgressivo   Profile = "agressivo"
)

// Soros compounds at most two extra entries after a win
const SorosMaxLevel = 2

// ConservadorMaxEntries caps a conservador recovery chain; past it the
// ladder resets and the accumulated loss is accepted.
const ConservadorMaxEntries = 5

// DefaultClientPayout is the fallback when the payout query fails
const DefaultClientPayout = 92.0

// Input carries everything the ladder needs to size the next stake
type Input struct {
	Entry           int     // 1-based entry number of the operation about to run
	ConsecutiveWins int     // Soros level already banked (0..2)
	LossesAccum     float64 // sum of stakes lost since the last base entry
	LastProfit      float64 // profit of the previous winning entry
	PreviousStake   float64 // stake of the previous entry
	BaseStake       float64
	Profile         Profile
	PayoutCliente   float64 // effective client payout percent
	Currency        string
}

// Result is the sized stake plus ladder bookkeeping
type Result struct {
	Stake       float64
	IsRecovery  bool // stake was sized by the martingale
	ResetLadder bool // conservador cap was hit; caller must clear the chain
}

// NextStake sizes the next entry. With no accumulated losses the Soros
// progression applies; otherwise the martingale recovers the losses plus
// the profile's meta.
func NextStake(in Input) Result {
	if in.LossesAccum <= 0 {
		return Result{Stake: sorosStake(in)}
	}

	if in.Profile == ProfileConservador && in.Entry > ConservadorMaxEntries {
		return Result{Stake: roundStake(in.BaseStake, in.Currency), ResetLadder: true}
	}

	return Result{Stake: martingaleStake(in), IsRecovery: true}
}

// sorosStake applies the compounding progression: at entries 2 and 3 with
// the matching banked win level, the previous profit rides on top of the
// previous stake. Anything else is a base entry.
func sorosStake(in Input) float64 {
	if in.Entry >= 2 && in.Entry <= SorosMaxLevel+1 && in.ConsecutiveWins == in.Entry-1 {
		return roundStake(in.PreviousStake+in.LastProfit, in.Currency)
	}
	return roundStake(in.BaseStake, in.Currency)
}

// martingaleStake recovers the accumulated losses plus the profile meta at
// the quoted client payout
func martingaleStake(in Input) float64 {
	payout := in.PayoutCliente
	if payout <= 0 {
		payout = DefaultClientPayout
	}

	stake := Meta(in.Profile, in.LossesAccum) * 100 / payout
	stake = roundStake(stake, in.Currency)

	if min := MinStakeByCurrency(in.Currency); stake < min {
		stake = min
	}
	return stake
}

// Meta is the amount a recovery entry must net: break-even for
// conservador, +25% for moderado, +50% for agressivo.
func Meta(profile Profile, lossesAccum float64) float64 {
	switch profile {
	case ProfileModerado:
		return lossesAccum * 1.25
	case ProfileAgressivo:
		return lossesAccum * 1.50
	default:
		return lossesAccum
	}
}

// ClientPayout applies the house markup to the venue payout
func ClientPayout(payoutOriginal, markup float64) float64 {
	return payoutOriginal - markup
}

// MinStakeByCurrency is the venue's minimum stake for a currency
func MinStakeByCurrency(currency string) float64 {
	switch currency {
	case "BTC":
		return 0.0000001
	case "ETH":
		return 0.000002
	case "LTC":
		return 0.00002
	default: // fiat and stablecoins
		return 0.35
	}
}

// Round2 rounds to two decimals, the fiat stake precision
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func isCrypto(currency string) bool {
	switch currency {
	case "BTC", "ETH", "LTC":
		return true
	}
	return false
}

// roundStake rounds to the currency's precision: 8 decimals for crypto,
// 2 for everything else
func roundStake(v float64, currency string) float64 {
	if isCrypto(currency) {
		return math.Round(v*1e8) / 1e8
	}
	return Round2(v)
}

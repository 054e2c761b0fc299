// Package finance derives platform commission and net income for reservations.
package finance

import (
	"math"

	"delfin/internal/model"
)

// commissionRates are the fixed per-channel platform fees.
var commissionRates = map[model.Channel]float64{
	model.ChannelBooking: 0.15,
	model.ChannelAirbnb:  0.14,
	model.ChannelManual:  0,
}

// Rate returns the commission rate for a channel; unknown channels pay nothing.
func Rate(c model.Channel) float64 {
	return commissionRates[c]
}

// RoundCents rounds to two decimals, half away from zero.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Derive returns the platform commission (rounded to cents) and the net
// income for a gross amount. Net is gross minus the rounded commission and is
// not rounded on its own.
func Derive(gross float64, c model.Channel) (commission, net float64) {
	commission = RoundCents(gross * Rate(c))
	net = gross - commission
	return commission, net
}

// Apply fills the financial fields of r from a gross amount. Explicit
// commission / net overrides win over derived values.
func Apply(r *model.Reservation, gross float64, commission, net *float64) {
	derivedCommission, _ := Derive(gross, r.Channel)

	r.GuestPaid = gross
	r.PlatformCommission = derivedCommission
	if commission != nil {
		r.PlatformCommission = *commission
	}
	r.NetIncome = gross - r.PlatformCommission
	if net != nil {
		r.NetIncome = *net
	}
}

package model

import "time"

// Channel is the booking source a reservation originated from.
type Channel string

const (
	ChannelManual  Channel = "manual"
	ChannelBooking Channel = "booking"
	ChannelAirbnb  Channel = "airbnb"
)

// InboundChannels lists the channels that publish a feed we can ingest.
var InboundChannels = []Channel{ChannelBooking, ChannelAirbnb}

func ValidChannel(c Channel) bool {
	switch c {
	case ChannelManual, ChannelBooking, ChannelAirbnb:
		return true
	}
	return false
}

type ReservationStatus string

const (
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

func ValidStatus(s ReservationStatus) bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// DefaultCurrency is applied to reservations created without an explicit currency.
const DefaultCurrency = "EUR"

// Room is a rentable unit with optional inbound feeds (one per external
// channel) and an optional outbound feed URL.
type Room struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Capacity         int       `json:"capacity"`
	BasePrice        float64   `json:"base_price"`
	ICalInBookingURL string    `json:"ical_in_booking_url"`
	ICalInAirbnbURL  string    `json:"ical_in_airbnb_url"`
	ICalOutURL       string    `json:"ical_out_url"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// InboundURL returns the configured feed URL for an external channel, or "".
func (r Room) InboundURL(c Channel) string {
	switch c {
	case ChannelBooking:
		return r.ICalInBookingURL
	case ChannelAirbnb:
		return r.ICalInAirbnbURL
	}
	return ""
}

// Reservation is a stay in a room. ExternalID is unique per Channel and is
// the key used when reconciling inbound feeds.
type Reservation struct {
	ID                 string            `json:"id"`
	ExternalID         string            `json:"external_id"`
	RoomID             string            `json:"room_id"`
	GuestName          string            `json:"guest_name"`
	GuestEmail         string            `json:"guest_email"`
	GuestPhone         string            `json:"guest_phone"`
	CheckIn            time.Time         `json:"check_in"`
	CheckOut           time.Time         `json:"check_out"`
	Channel            Channel           `json:"channel"`
	Status             ReservationStatus `json:"status"`
	TotalPrice         float64           `json:"total_price"`
	GuestPaid          float64           `json:"guest_paid"`
	PlatformCommission float64           `json:"platform_commission"`
	NetIncome          float64           `json:"net_income"`
	Currency           string            `json:"currency"`

	// ArrivalTime and SpecialRequests are filled in by the guest at digital check-in.
	ArrivalTime     string    `json:"arrival_time,omitempty"`
	SpecialRequests string    `json:"special_requests,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Nights returns the number of nights between check-in and check-out.
func (r Reservation) Nights() int {
	d := r.CheckOut.Sub(r.CheckIn)
	if d <= 0 {
		return 0
	}
	return int((d + 12*time.Hour) / (24 * time.Hour))
}

type DocumentType string

const (
	DocumentDNI      DocumentType = "dni"
	DocumentPassport DocumentType = "passport"
	DocumentNIE      DocumentType = "nie"
	DocumentOther    DocumentType = "other"
)

// Guest is one traveler recorded during digital check-in.
type Guest struct {
	ID             string       `json:"id"`
	ReservationID  string       `json:"reservation_id"`
	Name           string       `json:"name"`
	DocumentType   DocumentType `json:"document_type"`
	DocumentNumber string       `json:"document_number"`
	BirthDate      string       `json:"birth_date"`
	Country        string       `json:"country"`
	SignatureURL   string       `json:"signature_url,omitempty"`
	AcceptsRules   bool         `json:"accepts_rules"`
	CreatedAt      time.Time    `json:"created_at"`
}

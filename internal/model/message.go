package model

import "time"

// Trigger names the moment an automated message is sent.
type Trigger string

const (
	TriggerReservationConfirmed Trigger = "reservation_confirmed"
	// TriggerDaysBeforeArrival fires N days before check-in; N is configured
	// (messages.days_before_arrival), the stored name keeps the historical 7.
	TriggerDaysBeforeArrival    Trigger = "t_minus_7_days"
	TriggerHoursBeforeArrival   Trigger = "t_minus_24_hours"
	TriggerCheckinInstructions  Trigger = "checkin_instructions"
	TriggerPostCheckout         Trigger = "post_checkout"
)

var Triggers = []Trigger{
	TriggerReservationConfirmed,
	TriggerDaysBeforeArrival,
	TriggerHoursBeforeArrival,
	TriggerCheckinInstructions,
	TriggerPostCheckout,
}

func ValidTrigger(t Trigger) bool {
	for _, v := range Triggers {
		if v == t {
			return true
		}
	}
	return false
}

// DeliveryChannel is how a templated message reaches its recipient.
type DeliveryChannel string

const (
	DeliveryEmail    DeliveryChannel = "email"
	DeliveryTelegram DeliveryChannel = "telegram"
	DeliveryWhatsApp DeliveryChannel = "whatsapp"
)

type MessageTemplate struct {
	ID        string          `json:"id"`
	Trigger   Trigger         `json:"trigger"`
	Channel   DeliveryChannel `json:"channel"`
	Body      string          `json:"template"`
	Language  string          `json:"language"`
	Active    bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Delivery records that a template was sent for a reservation, so scheduled
// messages go out at most once.
type Delivery struct {
	ID            string          `json:"id"`
	ReservationID string          `json:"reservation_id"`
	TemplateID    string          `json:"template_id"`
	Channel       DeliveryChannel `json:"channel"`
	Recipient     string          `json:"recipient"`
	SentAt        time.Time       `json:"sent_at"`
}

func ValidDeliveryChannel(c DeliveryChannel) bool {
	switch c {
	case DeliveryEmail, DeliveryTelegram, DeliveryWhatsApp:
		return true
	}
	return false
}

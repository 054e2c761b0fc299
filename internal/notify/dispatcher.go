package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	appLog "delfin/internal/log"
	"delfin/internal/messaging"
	"delfin/internal/model"
	"delfin/internal/store"
)

type DispatcherConfig struct {
	// HostChat is the Telegram chat that receives host notices.
	HostChat   string
	Language   string
	DaysBefore int
	Location   *time.Location
	// Variables are merged into every template's variables.
	Variables map[string]string
}

// Dispatcher turns queue jobs and schedule ticks into sent messages. Every
// template delivery is recorded so a (reservation, template) pair is sent at
// most once no matter how often RunDue runs.
type Dispatcher struct {
	store   *store.Store
	senders map[model.DeliveryChannel]Sender
	cfg     DispatcherConfig
}

func NewDispatcher(st *store.Store, cfg DispatcherConfig) *Dispatcher {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Language == "" {
		cfg.Language = "es"
	}
	if cfg.DaysBefore <= 0 {
		cfg.DaysBefore = 7
	}
	return &Dispatcher{
		store:   st,
		senders: make(map[model.DeliveryChannel]Sender),
		cfg:     cfg,
	}
}

// Register enables a delivery channel. Channels without a sender are skipped.
func (d *Dispatcher) Register(ch model.DeliveryChannel, s Sender) {
	d.senders[ch] = s
}

// Handle is the queue Handler.
func (d *Dispatcher) Handle(ctx context.Context, job Job) error {
	res, err := d.store.Reservations.Get(ctx, job.ReservationID)
	if err != nil {
		return fmt.Errorf("load reservation %s: %w", job.ReservationID, err)
	}
	room, err := d.store.Rooms.Get(ctx, res.RoomID)
	if err != nil {
		return fmt.Errorf("load room %s: %w", res.RoomID, err)
	}

	switch job.Kind {
	case KindNewReservation:
		text := job.Text
		if text == "" {
			text = NewReservationNotice(room, res, d.cfg.Location)
		}
		errs := []error{d.notifyHost(ctx, text)}

		if res.Status == model.StatusConfirmed {
			tpls, err := d.store.Templates.ListActive(ctx, model.TriggerReservationConfirmed)
			if err != nil {
				return errors.Join(append(errs, err)...)
			}
			for _, t := range d.forLanguage(tpls) {
				if _, err := d.deliver(ctx, t, res, room); err != nil {
					errs = append(errs, err)
				}
			}
		}
		return errors.Join(errs...)

	case KindCheckinCompleted:
		text := job.Text
		if text == "" {
			text = CheckinCompletedNotice(room, res)
		}
		return d.notifyHost(ctx, text)
	}
	return fmt.Errorf("unknown job kind %q", job.Kind)
}

// RunDue sends every scheduled template that is due at now and not yet
// delivered. It returns how many messages were sent.
func (d *Dispatcher) RunDue(ctx context.Context, now time.Time) (int, error) {
	reservations, err := d.store.Reservations.List(ctx, store.ReservationFilter{
		Status: model.StatusConfirmed,
		// widest windows: post_checkout ends 26h after check-out,
		// the days-before reminder opens N days ahead.
		DateFrom: now.Add(-48 * time.Hour),
		DateTo:   now.AddDate(0, 0, d.cfg.DaysBefore+2),
	})
	if err != nil {
		return 0, err
	}
	if len(reservations) == 0 {
		return 0, nil
	}

	templates := make(map[model.Trigger][]model.MessageTemplate)
	for _, trig := range messaging.ScheduledTriggers {
		tpls, err := d.store.Templates.ListActive(ctx, trig)
		if err != nil {
			return 0, err
		}
		templates[trig] = d.forLanguage(tpls)
	}

	rooms := make(map[string]model.Room)
	sent := 0
	var errs []error
	for _, res := range reservations {
		for _, trig := range messaging.ScheduledTriggers {
			if len(templates[trig]) == 0 || !messaging.Due(trig, res, now, d.cfg.DaysBefore) {
				continue
			}
			room, ok := rooms[res.RoomID]
			if !ok {
				room, err = d.store.Rooms.Get(ctx, res.RoomID)
				if err != nil {
					errs = append(errs, fmt.Errorf("load room %s: %w", res.RoomID, err))
					continue
				}
				rooms[res.RoomID] = room
			}
			for _, t := range templates[trig] {
				ok, err := d.deliver(ctx, t, res, room)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if ok {
					sent++
				}
			}
		}
	}

	if sent > 0 || len(errs) > 0 {
		appLog.Info("scheduled messages dispatched", "sent", sent, "failed", len(errs))
	}
	return sent, errors.Join(errs...)
}

// Preview renders a template for a reservation without sending it.
func (d *Dispatcher) Preview(ctx context.Context, t model.MessageTemplate, reservationID string) (string, error) {
	res, err := d.store.Reservations.Get(ctx, reservationID)
	if err != nil {
		return "", err
	}
	room, err := d.store.Rooms.Get(ctx, res.RoomID)
	if err != nil {
		return "", err
	}
	return messaging.Render(t.Body, messaging.VarsFor(res, room, d.cfg.Location, d.cfg.Variables)), nil
}

// deliver sends one template unless already delivered. A missing
// recipient or sender is a skip, not an error.
func (d *Dispatcher) deliver(ctx context.Context, t model.MessageTemplate, res model.Reservation, room model.Room) (bool, error) {
	done, err := d.store.Deliveries.Delivered(ctx, res.ID, t.ID)
	if err != nil {
		return false, err
	}
	if done {
		return false, nil
	}

	sender, ok := d.senders[t.Channel]
	if !ok {
		appLog.Debug("message skipped: channel not configured", "channel", t.Channel, "template_id", t.ID)
		return false, nil
	}
	to := d.recipient(t.Channel, res)
	if to == "" {
		appLog.Debug("message skipped: no recipient", "channel", t.Channel, "reservation_id", res.ID)
		return false, nil
	}

	vars := messaging.VarsFor(res, room, d.cfg.Location, d.cfg.Variables)
	if t.Channel == model.DeliveryTelegram {
		// Telegram sends in HTML mode; feed data must not become markup.
		for k, v := range vars {
			vars[k] = html.EscapeString(v)
		}
	}
	msg := Message{
		To:      to,
		Subject: messaging.Subject(t.Trigger, room),
		Body:    messaging.Render(t.Body, vars),
	}
	if err := sender.Send(ctx, msg); err != nil {
		return false, fmt.Errorf("send %s/%s for reservation %s: %w", t.Trigger, t.Channel, res.ID, err)
	}

	rec := model.Delivery{ReservationID: res.ID, TemplateID: t.ID, Channel: t.Channel, Recipient: to}
	if err := d.store.Deliveries.Record(ctx, &rec); err != nil && !errors.Is(err, store.ErrConflict) {
		return true, err
	}
	appLog.Info("message sent", "trigger", t.Trigger, "channel", t.Channel, "reservation_id", res.ID)
	return true, nil
}

func (d *Dispatcher) recipient(ch model.DeliveryChannel, res model.Reservation) string {
	switch ch {
	case model.DeliveryEmail:
		return res.GuestEmail
	case model.DeliveryWhatsApp:
		return res.GuestPhone
	case model.DeliveryTelegram:
		return d.cfg.HostChat
	}
	return ""
}

func (d *Dispatcher) notifyHost(ctx context.Context, text string) error {
	sender, ok := d.senders[model.DeliveryTelegram]
	if !ok || d.cfg.HostChat == "" {
		appLog.Debug("host notice skipped: telegram not configured")
		return nil
	}
	return sender.Send(ctx, Message{To: d.cfg.HostChat, Body: text})
}

func (d *Dispatcher) forLanguage(tpls []model.MessageTemplate) []model.MessageTemplate {
	out := tpls[:0:0]
	for _, t := range tpls {
		if t.Language == "" || t.Language == d.cfg.Language {
			out = append(out, t)
		}
	}
	return out
}

// NewReservationNotice is the host's Telegram notice for a new booking.
func NewReservationNotice(room model.Room, res model.Reservation, loc *time.Location) string {
	return fmt.Sprintf("🏠 <b>Nueva Reserva</b>\n\nHabitación: %s\nHuésped: %s\nCheck-in: %s\nCanal: %s\n\n¡Prepara la habitación! 🧹",
		html.EscapeString(room.Name),
		html.EscapeString(res.GuestName),
		res.CheckIn.In(loc).Format(messaging.DateLayout),
		res.Channel,
	)
}

func CheckinCompletedNotice(room model.Room, res model.Reservation) string {
	return fmt.Sprintf("✅ <b>Check-in Completado</b>\n\nHabitación: %s\nHuésped: %s\n\nDocumentos recibidos y firmados.",
		html.EscapeString(room.Name),
		html.EscapeString(res.GuestName),
	)
}

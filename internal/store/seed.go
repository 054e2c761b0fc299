package store

import (
	"context"

	appLog "delfin/internal/log"
	"delfin/internal/model"
)

// DefaultTemplates are installed on first start so a fresh installation
// already greets guests.
var DefaultTemplates = []model.MessageTemplate{
	{
		Trigger:  model.TriggerReservationConfirmed,
		Channel:  model.DeliveryEmail,
		Language: "es",
		Active:   true,
		Body: "Hola {{guest_name}},\n\n¡Gracias por reservar con nosotros!\n\n" +
			"Detalles de tu reserva:\n- Habitación: {{room_name}}\n- Check-in: {{check_in_date}}\n- Check-out: {{check_out_date}}\n\n" +
			"En breve recibirás el enlace para completar tu check-in digital.\n\n¡Nos vemos pronto!\n\n" +
			"Saludos,\nEl equipo de Delfín Check-in",
	},
	{
		Trigger:  model.TriggerDaysBeforeArrival,
		Channel:  model.DeliveryEmail,
		Language: "es",
		Active:   true,
		Body: "Hola {{guest_name}},\n\nTu llegada está a solo 7 días.\n\n" +
			"Recordatorio de tu reserva:\n- Habitación: {{room_name}}\n- Check-in: {{check_in_date}}\n- Check-out: {{check_out_date}}\n\n" +
			"¿Cómo llegar?\n{{directions}}\n\n¡Nos vemos pronto!\n\n" +
			"Saludos,\nEl equipo de Delfín Check-in",
	},
}

// SeedDefaults inserts DefaultTemplates when no template exists yet.
func (s *Store) SeedDefaults(ctx context.Context) error {
	n, err := s.Templates.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, t := range DefaultTemplates {
		if err := s.Templates.Create(ctx, &t); err != nil {
			return err
		}
	}
	appLog.Info("seeded default message templates", "count", len(DefaultTemplates))
	return nil
}

package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"

	appLog "delfin/internal/log"
)

// WhatsAppSender sends guest messages from the host's own WhatsApp account
// as a linked device. The session lives in <dataDir>/whatsmeow.db.
type WhatsAppSender struct {
	client    *whatsmeow.Client
	qrChannel func(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)
}

func NewWhatsAppSender(ctx context.Context, dataDir string) (*WhatsAppSender, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(dataDir, "whatsmeow.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: open session store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: load device: %w", err)
	}

	s := &WhatsAppSender{client: whatsmeow.NewClient(device, nil)}
	s.qrChannel = s.client.GetQRChannel
	s.client.AddEventHandler(s.eventHandler)
	return s, nil
}

// Connect logs in. On first run it prints a pairing QR code to stderr and
// blocks until the code is scanned or expires, so callers usually run it in
// a goroutine.
func (s *WhatsAppSender) Connect(ctx context.Context) error {
	if s.client.Store.ID != nil {
		return s.client.Connect()
	}

	qrChan, err := s.qrChannel(ctx)
	if err != nil {
		return fmt.Errorf("whatsapp: pairing: %w", err)
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("whatsapp: connect: %w", err)
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			appLog.Info("whatsapp login event", "event", evt.Event)
			continue
		}
		q, err := qrcode.New(evt.Code, qrcode.Medium)
		if err != nil {
			appLog.Error("whatsapp: render QR failed", err, "code", evt.Code)
			continue
		}
		fmt.Fprintln(os.Stderr, "\n"+q.ToSmallString(false))
		fmt.Fprintln(os.Stderr, "Scan with WhatsApp > Settings > Linked Devices > Link a Device")
	}
	return nil
}

func (s *WhatsAppSender) Disconnect() {
	s.client.Disconnect()
}

func (s *WhatsAppSender) Send(ctx context.Context, msg Message) error {
	phone := NormalizePhone(msg.To)
	if phone == "" {
		return fmt.Errorf("whatsapp: invalid phone %q", msg.To)
	}
	if !s.client.IsConnected() {
		return fmt.Errorf("whatsapp: not connected")
	}

	resp, err := s.client.IsOnWhatsApp(ctx, []string{"+" + phone})
	if err != nil {
		return fmt.Errorf("whatsapp: verify %s: %w", phone, err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return fmt.Errorf("whatsapp: %s is not on WhatsApp", phone)
	}

	body := msg.Body
	if _, err := s.client.SendMessage(ctx, resp[0].JID, &waE2E.Message{Conversation: &body}); err != nil {
		return fmt.Errorf("whatsapp: send to %s: %w", phone, err)
	}
	return nil
}

func (s *WhatsAppSender) eventHandler(evt interface{}) {
	switch evt.(type) {
	case *events.Connected:
		appLog.Info("whatsapp connected")
	case *events.Disconnected:
		appLog.Info("whatsapp disconnected")
	case *events.LoggedOut:
		appLog.Info("whatsapp logged out; delete the session store to pair again")
	}
}

// NormalizePhone reduces a phone number to international digits without
// '+'. Spanish national numbers (9 digits starting with 6, 7, 8 or 9) get
// the 34 country code. Returns "" when nothing usable remains.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	digits = strings.TrimPrefix(digits, "00")

	if len(digits) == 9 && strings.ContainsRune("6789", rune(digits[0])) {
		digits = "34" + digits
	}
	if len(digits) < 8 {
		return ""
	}
	return digits
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gopkg.in/gomail.v2"

	"delfin/internal/config"
	appLog "delfin/internal/log"
)

// Message is one outgoing notification. To is an e-mail address, a phone
// number or a Telegram chat id depending on the sender.
type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// EmailSender delivers over SMTP.
type EmailSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewEmailSender returns nil when no SMTP host is configured.
func NewEmailSender(cfg config.EmailConfig) *EmailSender {
	if cfg.Host == "" {
		return nil
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &EmailSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   from,
	}
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("email: empty recipient")
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("email to %s: %w", msg.To, err)
	}
	appLog.Info("email sent", "subject", msg.Subject)
	return nil
}

// TelegramSender posts HTML messages through a bot. Guests are never
// messaged on Telegram; the recipient is the host chat.
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSender validates the token against the Bot API. endpoint is
// normally tgbotapi.APIEndpoint; tests point it at a local server.
func NewTelegramSender(token string, chatID int64, endpoint string) (*TelegramSender, error) {
	if token == "" {
		return nil, errors.New("telegram: empty bot token")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	appLog.Info("telegram bot ready", "username", bot.Self.UserName)
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

// HostChat is the configured chat id as a recipient string.
func (s *TelegramSender) HostChat() string {
	return strconv.FormatInt(s.chatID, 10)
}

func (s *TelegramSender) Send(ctx context.Context, msg Message) error {
	chatID := s.chatID
	if msg.To != "" {
		id, err := strconv.ParseInt(msg.To, 10, 64)
		if err != nil {
			return fmt.Errorf("telegram: invalid chat id %q", msg.To)
		}
		chatID = id
	}
	if chatID == 0 {
		return errors.New("telegram: no chat id configured")
	}

	m := tgbotapi.NewMessage(chatID, msg.Body)
	m.ParseMode = tgbotapi.ModeHTML
	if _, err := s.bot.Send(m); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

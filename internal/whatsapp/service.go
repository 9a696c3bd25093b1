// Package whatsapp sends invitations and receives RSVP replies over WhatsApp.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// InboundHandler receives the text of a message and the sender's phone number
type InboundHandler func(ctx context.Context, phone, text string) error

// Config configures the WhatsApp client
type Config struct {
	DataDir     string
	CountryCode string
	// QROut receives the pairing QR code. Defaults to stdout.
	QROut io.Writer
}

// Invitation is the content of an invitation message
type Invitation struct {
	Name            string
	WeddingDate     string
	WeddingLocation string
	BrideName       string
	GroomName       string
}

// Service wraps a whatsmeow client
type Service struct {
	client  *whatsmeow.Client
	cfg     Config
	log     zerolog.Logger
	handler InboundHandler
}

// NewService opens the device store and creates the client
func NewService(ctx context.Context, cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.QROut == nil {
		cfg.QROut = os.Stdout
	}
	log := logger.With().Str("component", "WhatsApp").Logger()

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s/whatsmeow.db?_foreign_keys=on", cfg.DataDir),
		waLog.Zerolog(log.With().Str("module", "Database").Logger()))
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Zerolog(log.With().Str("module", "Client").Logger()))
	service := &Service{
		client: client,
		cfg:    cfg,
		log:    log,
	}
	client.AddEventHandler(service.eventHandler)
	return service, nil
}

// NormalizePhoneNumber reduces a phone number to the digits WhatsApp expects.
// A national number with a leading 0 gets countryCode prepended, and a
// stray trunk 0 after the country code is dropped.
func NormalizePhoneNumber(phoneNumber, countryCode string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phoneNumber)

	digits = strings.TrimPrefix(digits, "00")
	if countryCode == "" {
		return digits
	}
	if strings.HasPrefix(digits, "0") {
		return countryCode + strings.TrimLeft(digits, "0")
	}
	if strings.HasPrefix(digits, countryCode+"0") {
		return countryCode + digits[len(countryCode)+1:]
	}
	return digits
}

// InvitationText renders the invitation message
func InvitationText(inv Invitation) string {
	return fmt.Sprintf(
		"🎉 *Wedding Invitation*\n\n"+
			"Dear %s,\n\n"+
			"You are cordially invited to celebrate the wedding of\n\n"+
			"*%s* & *%s*\n\n"+
			"📅 Date: %s\n"+
			"📍 Location: %s\n\n"+
			"Reply with:\n✅ *YES* to accept\n❌ *NO* to decline\n\n"+
			"Coming with someone? Reply *YES: Name (relation), Name*",
		inv.Name, inv.BrideName, inv.GroomName, inv.WeddingDate, inv.WeddingLocation,
	)
}

// Connect connects to WhatsApp, printing a pairing QR code on first use
func (s *Service) Connect(ctx context.Context) error {
	if s.client.Store.ID != nil {
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	qrChan, _ := s.client.GetQRChannel(ctx)
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			s.log.Info().Str("event", evt.Event).Msg("Login event")
			continue
		}
		q, err := qrcode.New(evt.Code, qrcode.Medium)
		if err != nil {
			fmt.Fprintf(s.cfg.QROut, "QR Code: %s\n", evt.Code)
			continue
		}
		fmt.Fprintln(s.cfg.QROut, "\n"+q.ToSmallString(false))
		fmt.Fprintln(s.cfg.QROut, "📱 Scan the QR code above with WhatsApp: Settings > Linked Devices > Link a Device")
	}
	return nil
}

// Disconnect disconnects from WhatsApp
func (s *Service) Disconnect() {
	s.client.Disconnect()
}

// resolveJID verifies the number is on WhatsApp and returns its JID
func (s *Service) resolveJID(ctx context.Context, phoneNumber string) (types.JID, error) {
	resp, err := s.client.IsOnWhatsApp(ctx, []string{"+" + phoneNumber})
	if err != nil {
		return types.JID{}, fmt.Errorf("failed to verify number on WhatsApp: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return types.JID{}, fmt.Errorf("number %s is not registered on WhatsApp", phoneNumber)
	}
	return resp[0].JID, nil
}

// SendText sends a plain text message
func (s *Service) SendText(ctx context.Context, phoneNumber, message string) error {
	phoneNumber = NormalizePhoneNumber(phoneNumber, s.cfg.CountryCode)

	jid, err := s.resolveJID(ctx, phoneNumber)
	if err != nil {
		return err
	}

	s.log.Debug().Str("jid", jid.String()).Str("phone", phoneNumber).Msg("Sending message")
	sent, err := s.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: &message,
	})
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", phoneNumber, err)
	}
	s.log.Info().Str("phone", phoneNumber).Str("message_id", sent.ID).Msg("Message sent")
	return nil
}

// SendInvitation sends the wedding invitation
func (s *Service) SendInvitation(ctx context.Context, phoneNumber string, inv Invitation) error {
	return s.SendText(ctx, phoneNumber, InvitationText(inv))
}

// SetMessageHandler sets the handler for incoming text messages
func (s *Service) SetMessageHandler(handler InboundHandler) {
	s.handler = handler
}

func (s *Service) eventHandler(evt interface{}) {
	switch evt := evt.(type) {
	case *events.Message:
		s.handleMessage(evt)
	case *events.Connected:
		s.log.Info().Msg("Connected to WhatsApp")
	case *events.Disconnected:
		s.log.Info().Msg("Disconnected from WhatsApp")
	case *events.LoggedOut:
		s.log.Info().Msg("Logged out from WhatsApp")
	}
}

func (s *Service) handleMessage(msg *events.Message) {
	if msg.Info.IsFromMe || msg.Message == nil {
		return
	}
	text := msg.Message.GetConversation()
	if text == "" {
		text = msg.Message.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		return
	}
	if s.handler == nil {
		s.log.Info().Str("sender", msg.Info.Sender.String()).Msg("Received message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.handler(ctx, msg.Info.Sender.User, text); err != nil {
		s.log.Error().Err(err).Str("sender", msg.Info.Sender.User).Msg("Error handling message")
	}
}

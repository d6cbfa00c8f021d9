// Package delivery sends purchased book artifacts to their buyers.
package delivery

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer emails every book of an order as a PDF attachment.
type Mailer struct {
	cfg SMTPConfig
	log *zap.Logger
}

func NewMailer(cfg SMTPConfig, log *zap.Logger) *Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailer{cfg: cfg, log: log}
}

func (m *Mailer) Deliver(ctx context.Context, user orders.User, books []orders.Book) error {
	msg, err := m.message(user, books)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("%w: smtp client: %w", orders.ErrDelivery, err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: send to %s: %w", orders.ErrDelivery, user.Email, err)
	}
	m.log.Info("books emailed", zap.String("user_id", user.ID), zap.Int("books", len(books)))
	return nil
}

func (m *Mailer) message(user orders.User, books []orders.Book) (*mail.Msg, error) {
	if user.Email == "" {
		return nil, fmt.Errorf("%w: user %s has no email", orders.ErrDelivery, user.ID)
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("%w: nothing to deliver", orders.ErrDelivery)
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("%w: from address: %w", orders.ErrDelivery, err)
	}
	if err := msg.To(user.Email); err != nil {
		return nil, fmt.Errorf("%w: to address: %w", orders.ErrDelivery, err)
	}
	msg.Subject(Subject(books))
	msg.SetBodyString(mail.TypeTextPlain, Body(books))
	for _, b := range books {
		if b.ArtifactPath == "" {
			return nil, fmt.Errorf("%w: book %s has no artifact", orders.ErrDelivery, b.ID)
		}
		// AttachFile silently skips files it cannot stat
		if _, err := os.Stat(b.ArtifactPath); err != nil {
			return nil, fmt.Errorf("%w: artifact of book %s: %w", orders.ErrDelivery, b.ID, err)
		}
		msg.AttachFile(b.ArtifactPath,
			mail.WithFileName(b.Title+".pdf"),
			mail.WithFileContentType(mail.ContentType("application/pdf")),
		)
	}
	return msg, nil
}

func Subject(books []orders.Book) string {
	if len(books) == 1 {
		return "Your book: " + books[0].Title
	}
	return fmt.Sprintf("Your books (%d)", len(books))
}

func Body(books []orders.Book) string {
	titles := make([]string, 0, len(books))
	for _, b := range books {
		titles = append(titles, b.Title)
	}
	return "Thank you for your purchase. Please find attached your book(s): " + strings.Join(titles, ", ")
}

// Package notify sends transactional email over SMTP.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/ornara/commerce-api/internal/domain/order"
	"github.com/ornara/commerce-api/internal/domain/returns"
)

// Config holds the SMTP endpoint and sender identity.
type Config struct {
	Host string
	Port string
	From string
}

// Enabled reports whether a mailer can be constructed from the config.
func (c Config) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// Mailer implements the order and returns notifier interfaces over SMTP.
// User identifiers double as recipient addresses, which the token issuer
// guarantees. Every send runs on its own goroutine and failures are logged
// and swallowed, so a dead mail relay never fails a checkout.
type Mailer struct {
	cfg Config
	lg  *zap.Logger
}

var (
	_ order.Notifier   = (*Mailer)(nil)
	_ returns.Notifier = (*Mailer)(nil)
)

// NewMailer creates a Mailer.
func NewMailer(cfg Config, lg *zap.Logger) *Mailer {
	return &Mailer{cfg: cfg, lg: lg}
}

// OrderPlaced sends the order confirmation.
func (m *Mailer) OrderPlaced(o *order.Order) {
	subject := fmt.Sprintf("Order %s confirmed", o.OrderNumber)
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order %s.\r\n\r\n", o.OrderNumber)
	for _, it := range o.Items {
		fmt.Fprintf(&b, "  %dx %s at %s\r\n", it.Quantity, it.Name, it.UnitPrice.StringFixed(2))
	}
	fmt.Fprintf(&b, "\r\nSubtotal: %s\r\n", o.Pricing.Subtotal.StringFixed(2))
	if o.Pricing.Discount.IsPositive() {
		fmt.Fprintf(&b, "Discount: -%s\r\n", o.Pricing.Discount.StringFixed(2))
	}
	fmt.Fprintf(&b, "Shipping: %s\r\n", o.Pricing.Shipping.StringFixed(2))
	fmt.Fprintf(&b, "Total: %s\r\n", o.Pricing.Total.StringFixed(2))

	go m.send(o.UserID, subject, b.String())
}

// OrderStatusChanged sends a status update for an order.
func (m *Mailer) OrderStatusChanged(o *order.Order) {
	subject := fmt.Sprintf("Order %s is now %s", o.OrderNumber, o.Status)
	body := fmt.Sprintf("Your order %s has moved to status %q.\r\n", o.OrderNumber, o.Status)
	go m.send(o.UserID, subject, body)
}

// ReturnStatusChanged sends a status update for a return request.
func (m *Mailer) ReturnStatusChanged(r *returns.Return) {
	subject := fmt.Sprintf("Return %s is now %s", r.ReturnNumber, r.Status)
	body := fmt.Sprintf("Your return %s has moved to status %q.\r\n", r.ReturnNumber, r.Status)
	if r.Status == returns.StatusRefundProcessed {
		body += fmt.Sprintf("A refund of %s is on its way via %s.\r\n",
			r.Refund.Amount.StringFixed(2), r.Refund.Method)
	}
	go m.send(r.UserID, subject, body)
}

func (m *Mailer) send(to, subject, body string) {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.cfg.From, to, subject, body)
	addr := m.cfg.Host + ":" + m.cfg.Port

	if err := smtp.SendMail(addr, nil, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		m.lg.Warn("send notification email",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return
	}
	m.lg.Debug("notification email sent",
		zap.String("to", to),
		zap.String("subject", subject),
	)
}

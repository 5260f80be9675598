package listener

import (
	"context"

	"vapay/internal/config"
	"vapay/internal/intake"
	"vapay/internal/reconcile"
)

type Publisher interface {
	Publish(ctx context.Context, stream string, v any) (string, error)
}

// Outbound publishes payment events and intake responses to their streams.
// It satisfies both reconcile.Notifier and intake.Responder.
type Outbound struct {
	pub     Publisher
	streams config.Streams
}

func NewOutbound(pub Publisher, streams config.Streams) *Outbound {
	return &Outbound{pub: pub, streams: streams}
}

func (o *Outbound) PaymentReceived(ctx context.Context, event reconcile.PaymentEvent) error {
	_, err := o.pub.Publish(ctx, o.streams.PaymentNotification, event)
	return err
}

func (o *Outbound) DebtorResponse(ctx context.Context, resp intake.DebtorResponse) error {
	_, err := o.pub.Publish(ctx, o.streams.DebtorResponse, resp)
	return err
}

func (o *Outbound) InvoiceResponse(ctx context.Context, resp intake.InvoiceResponse) error {
	_, err := o.pub.Publish(ctx, o.streams.InvoiceResponse, resp)
	return err
}

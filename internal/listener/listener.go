package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"vapay/internal/config"
	"vapay/internal/intake"
	"vapay/internal/messaging"
	"vapay/internal/reconcile"
)

// StreamConsumer runs a handler over one stream until ctx is canceled.
type StreamConsumer interface {
	Run(ctx context.Context, stream string, h messaging.Handler) error
}

type Services struct {
	VAStatus *reconcile.VAStatusReconciler
	Payments *reconcile.PaymentReconciler
	Intake   *intake.Service
}

// Listener consumes every inbound stream in its own goroutine.
type Listener struct {
	consumer StreamConsumer
	routes   map[string]messaging.Handler
	log      zerolog.Logger
}

func New(consumer StreamConsumer, log zerolog.Logger) *Listener {
	return &Listener{consumer: consumer, routes: map[string]messaging.Handler{}, log: log}
}

// Register routes the inbound streams to svc. Intake entries that cannot be
// decoded are answered with a failure response before they are acknowledged.
func (l *Listener) Register(streams config.Streams, svc Services) {
	l.Handle(streams.VAResponse, handle(l.log, func(ctx context.Context, msg reconcile.VAResponse) error {
		_, err := svc.VAStatus.Apply(ctx, msg)
		return err
	}, nil))
	l.Handle(streams.VAPayment, handle(l.log, func(ctx context.Context, msg reconcile.VAPayment) error {
		_, err := svc.Payments.Apply(ctx, msg)
		return err
	}, nil))
	l.Handle(streams.DebtorRequest, handle(l.log, func(ctx context.Context, req intake.DebtorRequest) error {
		_, err := svc.Intake.RegisterDebtor(ctx, req)
		return err
	}, func(ctx context.Context, _ intake.DebtorRequest, err error) {
		svc.Intake.RefuseDebtorPayload(ctx, err)
	}))
	l.Handle(streams.InvoiceRequest, handle(l.log, func(ctx context.Context, req intake.InvoiceRequest) error {
		_, err := svc.Intake.CreateInvoice(ctx, req)
		return err
	}, func(ctx context.Context, partial intake.InvoiceRequest, err error) {
		svc.Intake.RefuseInvoicePayload(ctx, partial, err)
	}))
}

func (l *Listener) Handle(stream string, h messaging.Handler) {
	l.routes[stream] = h
}

func (l *Listener) Streams() []string {
	streams := make([]string, 0, len(l.routes))
	for s := range l.routes {
		streams = append(streams, s)
	}
	sort.Strings(streams)
	return streams
}

// Run blocks until ctx is canceled or a stream consumer fails.
func (l *Listener) Run(ctx context.Context) error {
	if len(l.routes) == 0 {
		return fmt.Errorf("listener has no streams registered")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, stream := range l.Streams() {
		stream, h := stream, l.routes[stream]
		g.Go(func() error {
			return l.consumer.Run(ctx, stream, h)
		})
	}
	return g.Wait()
}

// handle decodes the entry payload into T and applies it. Undecodable entries
// are passed to undecodable, when set, and acknowledged like rejections; every
// other error leaves the entry pending.
func handle[T any](
	log zerolog.Logger,
	apply func(ctx context.Context, msg T) error,
	undecodable func(ctx context.Context, partial T, err error),
) messaging.Handler {
	return func(ctx context.Context, msg messaging.Message) error {
		var v T
		if err := json.Unmarshal(msg.Payload, &v); err != nil {
			log.Warn().
				Err(err).
				Str("stream", msg.Stream).
				Str("entry_id", msg.ID).
				Str("kind", string(reconcile.KindMalformed)).
				Msg("undecodable entry dropped")
			if undecodable != nil {
				undecodable(ctx, v, err)
			}
			return nil
		}

		err := apply(ctx, v)
		if _, ok := reconcile.IsRejection(err); ok {
			return nil
		}
		return err
	}
}

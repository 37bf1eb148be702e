package marketplace

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wattswap-backend/internal/application/feed"
	"wattswap-backend/internal/domain"
	"wattswap-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

const defaultKeepAlive = 15 * time.Second

// GET /api/v1/marketplace/stream/listings
func (h *Handlers) StreamAvailable(c *fiber.Ctx) error {
	return h.stream(c, feed.AvailableListings())
}

// GET /api/v1/marketplace/stream/listings/mine
func (h *Handlers) StreamMyListings(c *fiber.Ctx) error {
	id := middleware.CurrentIdentity(c)
	if id == nil {
		return writeError(c, domain.ErrUnauthenticated)
	}
	return h.stream(c, feed.SellerListings(id.UID))
}

// GET /api/v1/marketplace/stream/purchases/mine
func (h *Handlers) StreamMyPurchases(c *fiber.Ctx) error {
	id := middleware.CurrentIdentity(c)
	if id == nil {
		return writeError(c, domain.ErrUnauthenticated)
	}
	return h.stream(c, feed.BuyerPurchases(id.UID))
}

// stream serves one subscription as Server-Sent Events. Every frame is a full snapshot;
// the subscription ends when the client goes away or the hub is closed.
func (h *Handlers) stream(c *fiber.Ctx, topic feed.Topic) error {
	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	traceID := middleware.GetTraceID(c)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	// The fiber ctx is recycled once this handler returns; the writer below only uses locals.
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-h.Hub.Closing():
				cancel()
			case <-ctx.Done():
			}
		}()

		snaps := make(chan feed.Snapshot)
		sub := h.Hub.Subscribe(ctx, topic, func(s feed.Snapshot) {
			select {
			case snaps <- s:
			case <-ctx.Done():
			}
		})
		defer sub.Unsubscribe()

		log.Info().Str("trace_id", traceID).Str("topic", string(topic.Kind)).Msg("stream opened")
		err := writeEvents(ctx, w, snaps, keepAlive)
		log.Info().Str("trace_id", traceID).Str("topic", string(topic.Kind)).AnErr("reason", err).Msg("stream closed")
	}))
	return nil
}

// writeEvents writes snapshot frames until snaps closes, ctx ends or a write fails.
func writeEvents(ctx context.Context, w *bufio.Writer, snaps <-chan feed.Snapshot, keepAlive time.Duration) error {
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-snaps:
			if !ok {
				return nil
			}
			if err := writeSnapshot(w, s); err != nil {
				return err
			}
		case <-ticker.C:
			if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
				return err
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
}

func writeSnapshot(w *bufio.Writer, s feed.Snapshot) error {
	if s.Err != nil {
		kind := domain.KindOf(s.Err)
		b, _ := json.Marshal(fiber.Map{
			"message":    messageFor(s.Err),
			"statusCode": statusFor(kind),
			"kind":       kind,
			"version":    s.Version,
		})
		_, err := fmt.Fprintf(w, "id: %s\nevent: error\ndata: %s\n\n", s.Version, b)
		return err
	}
	frame := fiber.Map{"topic": s.Topic, "version": s.Version, "takenAt": s.TakenAt}
	if s.Topic.Kind == feed.TopicBuyerPurchases {
		purchases := s.Purchases
		if purchases == nil {
			purchases = []domain.Purchase{}
		}
		frame["purchases"] = purchases
	} else {
		listings := s.Listings
		if listings == nil {
			listings = []domain.Listing{}
		}
		frame["listings"] = listings
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: snapshot\ndata: %s\n\n", s.Version, b)
	return err
}

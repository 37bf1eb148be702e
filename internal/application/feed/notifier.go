package feed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ChangesChannel is the Redis Pub/Sub channel shared by all API instances.
const ChangesChannel = "wattswap:market:changes"

const listenBuffer = 64

// LocalNotifier delivers changes to listeners in the same process.
type LocalNotifier struct {
	mu        sync.Mutex
	listeners map[chan Change]struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{listeners: map[chan Change]struct{}{}}
}

// Publish never blocks; a listener with a full buffer misses the change, which is
// harmless because every snapshot is a full replacement and the next change refreshes it.
func (n *LocalNotifier) Publish(ctx context.Context, c Change) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.listeners {
		select {
		case ch <- c:
		default:
			log.Warn().Str("listing_id", c.ListingID).Msg("feed listener behind; change dropped")
		}
	}
	return nil
}

func (n *LocalNotifier) Listen(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, listenBuffer)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.listeners, ch)
		close(ch)
		n.mu.Unlock()
	}()
	return ch, nil
}

// RedisNotifier publishes changes on ChangesChannel so hubs in other instances refresh too.
type RedisNotifier struct {
	RDB     *redis.Client
	Channel string
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{RDB: rdb, Channel: ChangesChannel}
}

func (n *RedisNotifier) Publish(ctx context.Context, c Change) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return n.RDB.Publish(ctx, n.Channel, b).Err()
}

func (n *RedisNotifier) Listen(ctx context.Context) (<-chan Change, error) {
	ps := n.RDB.Subscribe(ctx, n.Channel)
	// Wait for the subscription confirmation so no publish after Listen returns is lost.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	out := make(chan Change, listenBuffer)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					log.Warn().Err(err).Str("channel", msg.Channel).Msg("invalid market change payload")
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

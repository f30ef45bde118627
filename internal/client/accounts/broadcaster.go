package accounts

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/keeper/internal/client/models"
	"github.com/dmitrijs2005/keeper/internal/logging"
	"github.com/google/uuid"
)

const subscriberBufferSize = 64

// broadcaster fans account change notifications out to subscribers.
// Publishing never blocks; a full subscriber misses the notification.
type broadcaster struct {
	mu   sync.RWMutex
	subs map[string]chan models.AccountID
	log  logging.Logger
}

func newBroadcaster(log logging.Logger) *broadcaster {
	return &broadcaster{subs: make(map[string]chan models.AccountID), log: log}
}

// subscribe registers a subscriber that is removed, and its channel
// closed, once ctx is done.
func (b *broadcaster) subscribe(ctx context.Context) <-chan models.AccountID {
	id := uuid.NewString()
	ch := make(chan models.AccountID, subscriberBufferSize)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(id)
	}()
	return ch
}

func (b *broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *broadcaster) publish(ctx context.Context, id models.AccountID) {
	// read lock held across the sends so unsubscribe cannot close a
	// channel mid-send
	b.mu.RLock()
	defer b.mu.RUnlock()
	for subID, ch := range b.subs {
		select {
		case ch <- id:
		default:
			b.log.Debug(ctx, "dropped account notification for slow subscriber", "sub_id", subID, "account_id", id)
		}
	}
}

package scheduler

import (
	"context"
	"net/http"
)

// Scheduler runs units of work and hands out the queues they talk through.
// Implementations are interchangeable from the dispatcher's point of view.
type Scheduler interface {
	// Spawn starts work in its own execution unit. The unit's context is
	// derived from ctx and cancelled by Stop.
	Spawn(ctx context.Context, work func(ctx context.Context)) Unit
	// NewQueue returns an empty FIFO queue safe for many producers and one consumer.
	NewQueue() Queue
	// Stop cancels units that are still running. It does not wait for them.
	Stop(units []Unit)
	// Prepare adjusts streaming response headers for this scheduler.
	Prepare(h http.Header)
}

// Unit is one scheduled piece of work.
type Unit interface {
	Stop()
	Done() <-chan struct{}
}

// Queue carries Items from producers to a single consumer in FIFO order.
type Queue interface {
	Push(ctx context.Context, item Item) error
	Pop(ctx context.Context) (Item, error)
}

// ItemKind tags a queue Item.
type ItemKind int

const (
	ItemFrame ItemKind = iota
	ItemDone
	ItemErr
	ItemEnd
)

func (k ItemKind) String() string {
	switch k {
	case ItemFrame:
		return "frame"
	case ItemDone:
		return "done"
	case ItemErr:
		return "error"
	case ItemEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Item is an encoded frame, a Done marker, an error value, or the End sentinel.
type Item struct {
	Kind  ItemKind
	Frame []byte
	Err   error
}

func FrameItem(frame []byte) Item { return Item{Kind: ItemFrame, Frame: frame} }

func DoneItem() Item { return Item{Kind: ItemDone} }

func ErrItem(err error) Item { return Item{Kind: ItemErr, Err: err} }

func EndItem() Item { return Item{Kind: ItemEnd} }

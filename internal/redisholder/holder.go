package redisholder

import (
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Holder hands out the current Redis client and lets the health loop swap it
// for a fresh one after a reconnect without the rest of the app noticing.
type Holder struct {
	v atomic.Value // stores clientBox
}

// atomic.Value requires one concrete type across stores, and a reconnect may
// replace a cluster client with a single-node one.
type clientBox struct {
	c redis.UniversalClient
}

func NewHolder(initial redis.UniversalClient) *Holder {
	h := &Holder{}
	h.v.Store(clientBox{initial})
	return h
}

func (h *Holder) Get() redis.UniversalClient {
	box, _ := h.v.Load().(clientBox)
	return box.c
}

func (h *Holder) swap(newc redis.UniversalClient) (old redis.UniversalClient) {
	old = h.Get()
	h.v.Store(clientBox{newc})
	return old
}

func (h *Holder) Close() error {
	if c := h.Get(); c != nil {
		return c.Close()
	}
	return nil
}

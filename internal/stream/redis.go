package stream

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// RedisChannel carries broadcasts between instances.
const RedisChannel = "playerroutes:broadcast"

const redisPublishTimeout = 500 * time.Millisecond

type envelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

// queueRemote is called under emitMu so the outbox keeps emission order.
// A full outbox drops the message for other instances only.
func (h *Hub) queueRemote(data []byte) {
	select {
	case h.redisOut <- data:
	default:
		h.redisDrop.Add(1)
		h.log.Warn("redis outbox full, dropping broadcast")
	}
}

func (h *Hub) publishLoop() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case data := <-h.redisOut:
			h.publishRedis(data)
		}
	}
}

func (h *Hub) publishRedis(data []byte) {
	body, err := json.Marshal(envelope{Origin: h.id, Payload: data})
	if err != nil {
		h.log.Error("marshal redis envelope", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, redisPublishTimeout)
	defer cancel()
	if err := h.opts.Redis.Publish(ctx, RedisChannel, body).Err(); err != nil {
		h.redisDrop.Add(1)
		h.log.Warn("redis publish error", zap.Error(err))
	}
}

func (h *Hub) subscribeRedis() {
	pubsub := h.opts.Redis.Subscribe(h.ctx, RedisChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(h.ctx); err != nil {
		h.log.Warn("redis subscribe failed", zap.Error(err))
		close(h.redisReady)
		return
	}
	close(h.redisReady)

	ch := pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.onRemote([]byte(msg.Payload))
		}
	}
}

func (h *Hub) onRemote(body []byte) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		h.log.Warn("malformed redis envelope", zap.Error(err))
		return
	}
	if env.Origin == h.id || len(env.Payload) == 0 {
		return
	}

	h.emitMu.Lock()
	defer h.emitMu.Unlock()
	h.remote.Add(1)
	h.deliver(env.Payload)
}

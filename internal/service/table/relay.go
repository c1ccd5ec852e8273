package table

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"holdem-service/pkg/logger"

	"go.uber.org/zap"
)

const eventChannelPrefix = "table:events:"

func eventChannel(tableID int64) string {
	return eventChannelPrefix + strconv.FormatInt(tableID, 10)
}

// publishHandEnded fans the hand-ended payload out through redis so every
// worker process delivers it to its own subscribers. Without redis the
// payload goes straight to local subscribers.
func (s *Service) publishHandEnded(ctx context.Context, rt *TableRuntime, payload HandEndedPayload) {
	if s.rdb == nil {
		rt.broadcastEvent(OutgoingMessage{Type: "hand_ended", Seq: rt.nextSeq(), Data: payload})
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Error("marshal hand_ended payload", zap.Error(err))
		return
	}
	if err := s.rdb.Publish(ctx, eventChannel(rt.table.ID), raw).Err(); err != nil {
		logger.Log.Warn("publish hand_ended failed, delivering locally",
			zap.Int64("tableID", rt.table.ID),
			zap.Error(err),
		)
		rt.broadcastEvent(OutgoingMessage{Type: "hand_ended", Seq: rt.nextSeq(), Data: payload})
	}
}

// StartEventRelay subscribes to the table event channels and forwards
// incoming payloads to this process's local ws subscribers. Runs until the
// context is canceled.
func (s *Service) StartEventRelay(ctx context.Context) {
	if s.rdb == nil {
		return
	}

	sub := s.rdb.PSubscribe(ctx, eventChannelPrefix+"*")
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				tableID, err := strconv.ParseInt(strings.TrimPrefix(msg.Channel, eventChannelPrefix), 10, 64)
				if err != nil {
					logger.Log.Warn("unparsable event channel", zap.String("channel", msg.Channel))
					continue
				}
				rt, ok := s.cachedRuntime(tableID)
				if !ok {
					continue
				}
				rt.broadcastEvent(OutgoingMessage{
					Type: "hand_ended",
					Seq:  rt.nextSeq(),
					Data: json.RawMessage(msg.Payload),
				})
			}
		}
	}()
}

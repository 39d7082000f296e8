package kafkaconsumer

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

type messageProcessor func(context.Context, *sarama.ConsumerMessage) error

type groupHandler struct {
	topic   string
	process messageProcessor
	// assigned is called with the claimed partitions on setup and nil on cleanup.
	assigned func([]int32)
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.assigned != nil {
		h.assigned(sess.Claims()[h.topic])
	}
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	if h.assigned != nil {
		h.assigned(nil)
	}
	return nil
}

// ConsumeClaim processes a partition in order and marks each offset only
// after its event was applied.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("claim context done: %w", ctx.Err())
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return fmt.Errorf("process failed (topic=%s, part=%d, off=%d): %w",
					msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}

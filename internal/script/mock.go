package script

import (
	"context"
	"time"
)

const mockConversation = `[
  {"channel": "1", "text": "Thank you for calling, my name is Sam. How can I help you today?"},
  {"channel": "2", "text": "Hi Sam, I was charged twice for my last order."},
  {"channel": "1", "text": "I'm sorry about that. Could you read me the order number?"},
  {"channel": "2", "text": "Sure, it's four five one two nine."},
  {"channel": "1", "text": "Thanks. I can see the duplicate charge and I've issued a refund."},
  {"channel": "2", "text": "Great, thank you so much."}
]`

type mockGenerator struct{}

func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	return consumer(Chunk{
		SessionID: req.SessionID,
		Content:   mockConversation,
		Partial:   false,
		Latency:   20 * time.Millisecond,
	})
}

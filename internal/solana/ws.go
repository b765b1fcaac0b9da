package solana

import "context"

// LogSubscriber delivers logsSubscribe notifications.
type LogSubscriber interface {
	// SubscribeLogs subscribes to transaction logs matching the filter.
	// The channel is closed when the subscriber is closed.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter defines subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs of transactions mentioning this address.
	// Nodes accept a single address per subscription.
	Mentions []string
}

// params renders the filter as logsSubscribe parameters.
func (f LogsFilter) params() []interface{} {
	var filter interface{} = "all"
	if len(f.Mentions) > 0 {
		filter = map[string]interface{}{"mentions": f.Mentions}
	}
	return []interface{}{filter, map[string]string{"commitment": "confirmed"}}
}

// LogNotification represents a logs subscription message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{} // non-nil for failed transactions
}

// Package messaging receives rescan requests over NATS.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"onchain-analytics/internal/domain"
)

// Defaults.
const (
	DefaultSubject        = "analytics.rescan"
	DefaultConnectTimeout = 10 * time.Second
	DefaultHandleTimeout  = 10 * time.Second

	// Origin labels rescans requested over NATS.
	Origin = "nats"
)

// Rescanner invalidates cached results.
type Rescanner interface {
	Rescan(ctx context.Context, wallet, mint, origin string) error
}

// RescanRequest is the JSON body of a rescan message. At least one field must be set.
type RescanRequest struct {
	Wallet string `json:"wallet,omitempty"`
	Mint   string `json:"mint,omitempty"`
}

// Options configures a RescanSubscriber.
type Options struct {
	URL            string
	Subject        string
	QueueGroup     string
	ConnectTimeout time.Duration
	HandleTimeout  time.Duration
	Logger         *zap.Logger
}

// RescanSubscriber applies rescan requests received on a NATS subject.
// Subscribers sharing a queue group split the messages between them.
type RescanSubscriber struct {
	rescanner Rescanner
	opts      Options
	logger    *zap.Logger

	mu   sync.Mutex
	conn *nats.Conn
	ctx  context.Context
}

// NewRescanSubscriber creates a subscriber. Call Connect to start receiving.
func NewRescanSubscriber(r Rescanner, opts Options) *RescanSubscriber {
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = DefaultHandleTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RescanSubscriber{
		rescanner: r,
		opts:      opts,
		logger:    logger.With(zap.String("component", "rescan-subscriber")),
	}
}

// Connect connects to the server and subscribes. Handlers run until ctx is done or Close is called.
func (s *RescanSubscriber) Connect(ctx context.Context) error {
	s.logger.Info("connecting to NATS", zap.String("url", s.opts.URL))

	conn, err := nats.Connect(s.opts.URL,
		nats.Name("onchain-analytics"),
		nats.Timeout(s.opts.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			s.logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	_, err = conn.QueueSubscribe(s.opts.Subject, s.opts.QueueGroup, s.handleMsg)
	if err != nil {
		conn.Close()
		return fmt.Errorf("subscribe %s: %w", s.opts.Subject, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("subscribed to rescan requests",
		zap.String("subject", s.opts.Subject),
		zap.String("queue_group", s.opts.QueueGroup),
	)
	return nil
}

func (s *RescanSubscriber) handleMsg(msg *nats.Msg) {
	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, s.opts.HandleTimeout)
	defer cancel()

	err := s.HandleMessage(ctx, msg.Data)
	if msg.Reply == "" {
		return
	}
	reply := []byte("ok")
	if err != nil {
		reply = []byte("error: " + err.Error())
	}
	if err := msg.Respond(reply); err != nil {
		s.logger.Warn("reply failed", zap.Error(err))
	}
}

// HandleMessage decodes one rescan request and applies it.
func (s *RescanSubscriber) HandleMessage(ctx context.Context, data []byte) error {
	var req RescanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Warn("undecodable rescan request", zap.Error(err))
		return fmt.Errorf("%w: rescan request: %v", domain.ErrMalformedPayload, err)
	}

	if err := s.rescanner.Rescan(ctx, req.Wallet, req.Mint, Origin); err != nil {
		level := s.logger.Error
		if errors.Is(err, domain.ErrValidation) {
			level = s.logger.Warn
		}
		level("rescan failed",
			zap.String("wallet", req.Wallet),
			zap.String("mint", req.Mint),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Close drains the subscription and closes the connection.
func (s *RescanSubscriber) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

// PublishRescan sends req to subject and waits for the subscriber's reply.
func PublishRescan(ctx context.Context, conn *nats.Conn, subject string, req RescanRequest) error {
	if subject == "" {
		subject = DefaultSubject
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode rescan request: %w", err)
	}
	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("rescan request: %w", err)
	}
	if reply := string(msg.Data); reply != "ok" {
		return fmt.Errorf("rescan rejected: %s", reply)
	}
	return nil
}

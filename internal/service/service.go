// Package service turns a decoded request into a stream of responses. The
// pipeline is a fixed chain of hooks around a variant dispatcher; storage
// commands produce a singleton stream, subscriptions a long one.
package service

import (
	"sync"

	"tablekv/internal/broker"
	"tablekv/internal/logger"
	"tablekv/internal/storage"
	"tablekv/internal/types"
)

// Service owns the shared storage engine and broker. It is safe for
// concurrent use by any number of stream handlers.
type Service struct {
	store  storage.Storage
	broker *broker.Broker

	onReceived   []func(*types.CommandRequest)
	onExecuted   []func(*types.CommandResponse)
	onBeforeSend []func(*types.CommandResponse)
	onAfterSend  []func(*types.CommandResponse)
}

// Option configures a Service at construction time; hooks cannot be added
// later.
type Option func(*Service)

// OnReceived runs before dispatch and may mutate the request.
func OnReceived(f func(*types.CommandRequest)) Option {
	return func(s *Service) { s.onReceived = append(s.onReceived, f) }
}

// OnExecuted observes the dispatcher's response.
func OnExecuted(f func(*types.CommandResponse)) Option {
	return func(s *Service) { s.onExecuted = append(s.onExecuted, f) }
}

// OnBeforeSend runs last before the response is handed to the stream and may
// mutate it.
func OnBeforeSend(f func(*types.CommandResponse)) Option {
	return func(s *Service) { s.onBeforeSend = append(s.onBeforeSend, f) }
}

// OnAfterSend observes the response after it leaves the pipeline; it must
// not alter semantics.
func OnAfterSend(f func(*types.CommandResponse)) Option {
	return func(s *Service) { s.onAfterSend = append(s.onAfterSend, f) }
}

// WithBroker substitutes the broker, mainly to shrink queue capacities in
// tests.
func WithBroker(b *broker.Broker) Option {
	return func(s *Service) { s.broker = b }
}

func New(store storage.Storage, opts ...Option) *Service {
	s := &Service{
		store:  store,
		broker: broker.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResponseStream is the lazy sequence produced by Execute. The channel is
// closed when the sequence ends; Close releases whatever produces it and
// must always be called. Close is idempotent and safe for concurrent use.
type ResponseStream struct {
	C      <-chan *types.CommandResponse
	cancel func()
	once   sync.Once
}

func (rs *ResponseStream) Close() {
	rs.once.Do(func() {
		if rs.cancel != nil {
			rs.cancel()
		}
	})
}

func singleton(resp *types.CommandResponse) *ResponseStream {
	ch := make(chan *types.CommandResponse, 1)
	ch <- resp
	close(ch)
	return &ResponseStream{C: ch}
}

// Execute runs the pipeline for one request. The stream is a singleton for
// everything except Subscribe, which stays open until unsubscribed or the
// stream is closed.
func (s *Service) Execute(req *types.CommandRequest) *ResponseStream {
	for _, f := range s.onReceived {
		f(req)
	}

	if sub, ok := req.Cmd.(*types.Subscribe); ok {
		handle := s.broker.Subscribe(sub.Topic)
		logger.Debug("subscription %d added on topic %q", handle.ID(), sub.Topic)
		return &ResponseStream{
			C:      handle.Chan(),
			cancel: func() { s.broker.Drop(handle) },
		}
	}

	resp := s.dispatch(req.Cmd)
	for _, f := range s.onExecuted {
		f(resp)
	}
	for _, f := range s.onBeforeSend {
		f(resp)
	}
	for _, f := range s.onAfterSend {
		f(resp)
	}
	return singleton(resp)
}

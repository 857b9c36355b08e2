package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/modallabs/modal-core/internal/bus"
	"github.com/modallabs/modal-core/internal/config"
	"github.com/modallabs/modal-core/internal/dispatch"
	"github.com/modallabs/modal-core/internal/envelope"
	"github.com/modallabs/modal-core/internal/protocol"
	"github.com/modallabs/modal-core/internal/resultstore"
)

// Service consumes envelope submissions from the bus, dispatches them, and
// publishes the outcome. Each submission is handled in its own tracked
// goroutine so a slow media envelope never blocks the subscription.
type Service struct {
	cfg        config.IngestConfig
	nodeID     string
	bus        *bus.Client
	dispatcher *dispatch.Dispatcher
	store      *resultstore.Store
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	sub        *nats.Subscription
	wg         sync.WaitGroup
	ready      bool
}

func NewService(parent context.Context, cfg config.IngestConfig, nodeID string, busClient *bus.Client, dispatcher *dispatch.Dispatcher, store *resultstore.Store, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:        cfg,
		nodeID:     nodeID,
		bus:        busClient,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger.With(slog.String("component", "ingest")),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	subject := protocol.SubjectEnvelopePrefix + ".>"
	sub, err := s.bus.Conn().Subscribe(subject, s.handleSubmission)
	if err != nil {
		return fmt.Errorf("subscribe envelope submissions: %w", err)
	}
	s.sub = sub
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready
}

func (s *Service) handleSubmission(msg *nats.Msg) {
	var submission protocol.EnvelopeSubmission
	if err := json.Unmarshal(msg.Data, &submission); err != nil {
		s.logger.Warn("failed to decode envelope submission", slogError(err))
		return
	}

	env, err := submission.ToEnvelope()
	if err != nil {
		s.logger.Warn("envelope submission carries unknown kind",
			slog.String("envelope_id", submission.EnvelopeID),
			slogError(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.process(env, submission.SourceNode)
	}()
}

func (s *Service) process(env *envelope.Envelope, sourceNode string) {
	result := s.dispatcher.Dispatch(s.ctx, env)

	event := protocol.ResultFromDispatch(result, s.nodeID, time.Now().UTC())
	if err := s.bus.PublishJSON(protocol.SubjectResult, event); err != nil {
		s.logger.Warn("failed to publish result event",
			slog.String("envelope_id", env.ID),
			slogError(err))
	}

	if s.store != nil {
		rec := resultstore.Record{
			EnvelopeID: event.EnvelopeID,
			Kind:       event.Kind,
			Content:    event.Content,
			Confidence: event.Confidence,
			ElapsedMS:  event.ElapsedMS,
			Warnings:   event.Warnings,
			Errors:     event.Errors,
			Node:       s.nodeID,
		}
		if err := s.store.Append(s.ctx, rec); err != nil {
			s.logger.Warn("failed to persist result",
				slog.String("envelope_id", env.ID),
				slogError(err))
		}
	}

	if sourceNode != "" && sourceNode != s.nodeID {
		s.logger.Debug("processed remote submission",
			slog.String("envelope_id", env.ID),
			slog.String("source_node", sourceNode))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

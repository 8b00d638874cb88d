package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mlutz/spieltag/go/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Broadcaster publishes committed match state for read-side consumers
// (scoreboards, monitor rotation). Best effort: a broadcast failure never
// fails the sync push that preceded it.
type Broadcaster interface {
	BroadcastState(ctx context.Context, payload events.MatchStatePayload) error
}

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	DuplicateWindow time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "MATCH_STATE",
		SubjectPrefix:   "match.state",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		DuplicateWindow: 2 * time.Hour,
	}
}

// JetStreamBroadcaster publishes match state to a NATS JetStream stream,
// keyed by tournament and match so display consumers can filter by subject.
type JetStreamBroadcaster struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamBroadcaster(cfg JetStreamConfig) (*JetStreamBroadcaster, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	b := &JetStreamBroadcaster{nc: nc, js: js, config: cfg}
	if err := b.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return b, nil
}

func (b *JetStreamBroadcaster) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        b.config.StreamName,
		Description: "Whole-state match projections for read-side displays",
		Subjects:    []string{fmt.Sprintf("%s.>", b.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      b.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Duplicates:  b.config.DuplicateWindow,
	}

	if _, err := b.js.Stream(ctx, b.config.StreamName); err != nil {
		if _, err = b.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", b.config.StreamName).Msg("created JetStream stream")
	}
	return nil
}

func (b *JetStreamBroadcaster) BroadcastState(ctx context.Context, payload events.MatchStatePayload) error {
	subject := fmt.Sprintf("%s.%s.%s", b.config.SubjectPrefix, payload.TournamentID, payload.MatchID)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal state payload: %w", err)
	}

	// Dedup on match id + version so redelivered pushes collapse.
	msgID := fmt.Sprintf("%s-%d", payload.MatchID, payload.UpdatedAt.UnixNano())
	ack, err := b.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Match-ID":      []string{payload.MatchID},
			"Tournament-ID": []string{payload.TournamentID},
		},
	},
		jetstream.WithMsgID(msgID),
		jetstream.WithExpectStream(b.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Uint64("sequence", ack.Sequence).
		Msg("broadcast match state")
	return nil
}

func (b *JetStreamBroadcaster) Close() error {
	if b.nc != nil {
		b.nc.Close()
	}
	return nil
}

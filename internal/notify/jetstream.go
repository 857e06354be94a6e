package notify

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Options locate the NATS server. When Stream is set the stream is created
// or updated to capture Subject.>.
type Options struct {
	URL     string
	Subject string
	Stream  string
}

// JetStream publishes through a NATS JetStream context.
type JetStream struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// Connect dials NATS and prepares JetStream.
func Connect(ctx context.Context, opts Options) (*JetStream, error) {
	conn, err := nats.Connect(opts.URL, nats.Name("nexus"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if opts.Stream != "" {
		subject := opts.Subject
		if subject == "" {
			subject = DefaultSubject
		}
		_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:        opts.Stream,
			Description: "nexus revision notifications",
			Subjects:    []string{subject + ".>"},
			Storage:     jetstream.FileStorage,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %q: %w", opts.Stream, err)
		}
	}
	return &JetStream{conn: conn, js: js}, nil
}

// Publish sends data to subject. msgID lets the stream drop duplicates.
func (p *JetStream) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	_, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID))
	return err
}

// Close drains the connection.
func (p *JetStream) Close() error {
	return p.conn.Drain()
}

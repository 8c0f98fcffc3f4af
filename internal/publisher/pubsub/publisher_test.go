package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPublisherPublishesJSON(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(ctx, "outreach-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, "outreach-events")
	require.NoError(t, err)

	p := NewWithClient(client, "outreach-events")
	defer func() { assert.NoError(t, p.Close()) }()

	id, err := p.Publish(ctx, "outreach.sent", map[string]string{"school": "Alpha School"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "outreach.sent", msgs[0].Attributes["event"])
	var payload map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Data, &payload))
	assert.Equal(t, "Alpha School", payload["school"])
}

func TestPublisherRejectsUnmarshalable(t *testing.T) {
	t.Parallel()

	p := &Publisher{topic: &pubsub.Topic{}}
	_, err := p.Publish(context.Background(), "outreach.sent", make(chan int))
	require.Error(t, err)
}

func TestNilPublisher(t *testing.T) {
	t.Parallel()

	var p *Publisher
	_, err := p.Publish(context.Background(), "outreach.sent", nil)
	require.Error(t, err)
	require.NoError(t, p.Close())
}

func TestNewRequiresProjectAndTopic(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "", "topic")
	require.Error(t, err)
}

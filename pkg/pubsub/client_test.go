package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/tenderflow-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := map[string]string{
		"tender-events":                       "projects/tenderflow-prod/topics/tender-events",
		"  tender-events ":                    "projects/tenderflow-prod/topics/tender-events",
		"projects/other/topics/tender-events": "projects/other/topics/tender-events",
		"":                                    "",
	}
	for in, want := range cases {
		if got := resourceName("tenderflow-prod", in); got != want {
			t.Fatalf("resourceName(%q) = %q, want %q", in, got, want)
		}
	}
	if got := resourceName("", "tender-events"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
}

type fakeAdmin struct {
	topics  map[string]bool
	created []string
}

func (f *fakeAdmin) GetTopic(_ context.Context, req *pubsubpb.GetTopicRequest) (*pubsubpb.Topic, error) {
	if !f.topics[req.GetTopic()] {
		return nil, status.Error(codes.NotFound, "topic not found")
	}
	return &pubsubpb.Topic{Name: req.GetTopic()}, nil
}

func (f *fakeAdmin) CreateTopic(_ context.Context, req *pubsubpb.Topic) (*pubsubpb.Topic, error) {
	f.topics[req.GetName()] = true
	f.created = append(f.created, req.GetName())
	return req, nil
}

func TestEnsureTopicsCreatesOnlyWhenAllowed(t *testing.T) {
	admin := &fakeAdmin{topics: map[string]bool{}}
	c := &Client{admin: admin, projectID: "local", topics: []string{"tender-events"}}

	if err := c.ensureTopics(context.Background()); err == nil {
		t.Fatal("expected missing topic error")
	}

	c.create = true
	if err := c.ensureTopics(context.Background()); err != nil {
		t.Fatalf("ensure with create: %v", err)
	}
	if len(admin.created) != 1 || admin.created[0] != "projects/local/topics/tender-events" {
		t.Fatalf("unexpected created topics %v", admin.created)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping after create: %v", err)
	}
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	if names := topicNames(config.PubSubConfig{TenderEventsTopic: "  "}); len(names) != 0 {
		t.Fatalf("expected no names, got %v", names)
	}
	if names := topicNames(config.PubSubConfig{TenderEventsTopic: "tender-events"}); len(names) != 1 {
		t.Fatalf("expected one name, got %v", names)
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil); err != errProjectIDRequired {
		t.Fatalf("expected errProjectIDRequired, got %v", err)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil {
		t.Fatal("expected nil publisher")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error on nil client")
	}
}

func TestClientOptionsPrecedence(t *testing.T) {
	if opts := clientOptions(config.GCPConfig{ProjectID: "p"}); len(opts) != 0 {
		t.Fatalf("expected default credentials, got %d options", len(opts))
	}
	opts := clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/creds.json"})
	if len(opts) != 1 {
		t.Fatalf("expected a single credentials option, got %d", len(opts))
	}
}

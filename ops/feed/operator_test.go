package feed

import (
	"context"
	"net/http/httptest"
	gohttp "net/http"
	"testing"
	"time"

	"github.com/senatoreg/pyfreeflow/envelope"
	httpop "github.com/senatoreg/pyfreeflow/ops/http"
)

const sampleRSS = `<rss version="2.0"><channel>
	<title>Example Feed</title>
	<link>http://example.com</link>
	<item>
		<title>First post</title>
		<link>http://example.com/1</link>
		<pubDate>Wed, 02 Oct 2024 15:00:00 GMT</pubDate>
		<description>hello world</description>
	</item>
</channel></rss>`

func newFeedOperator(t *testing.T, url string) *Operator {
	t.Helper()
	o, err := New(httpop.Config{
		URLTemplate:     url,
		Method:          "GET",
		Timeout:         2 * time.Second,
		MaxRetries:      1,
		MaxRetrySleep:   time.Second,
		MaxResponseSize: 1024 * 1024,
		MaxTasks:        1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestFeedRequesterParsesRSS(t *testing.T) {
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	o := newFeedOperator(t, srv.URL)
	_, out := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{})))
	e := out.(envelope.Envelope)
	if !e.OK() {
		t.Fatalf("request failed: %#v", e)
	}
	f, ok := e.Value.(map[string]any)["body"].(*Feed)
	if !ok {
		t.Fatalf("unexpected body type: %#v", e.Value)
	}
	if f.Title != "Example Feed" {
		t.Fatalf("unexpected title: %q", f.Title)
	}
	if len(f.Entries) != 1 || f.Entries[0].Title != "First post" {
		t.Fatalf("unexpected entries: %#v", f.Entries)
	}
}

func TestFeedRequesterServerErrorReturns102(t *testing.T) {
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		w.WriteHeader(503)
	}))
	defer srv.Close()

	o := newFeedOperator(t, srv.URL)
	_, out := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{})))
	e := out.(envelope.Envelope)
	if e.Code != envelope.CodeTargetFailure {
		t.Fatalf("expected code 102, got %#v", e)
	}
}

func TestFeedRequesterBadBodyReturnsParseError(t *testing.T) {
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte("not xml at all"))
	}))
	defer srv.Close()

	o := newFeedOperator(t, srv.URL)
	_, out := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{})))
	e := out.(envelope.Envelope)
	if e.Code != envelope.CodeParseError {
		t.Fatalf("expected code 106, got %#v", e)
	}
}

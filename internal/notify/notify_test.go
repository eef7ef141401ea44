package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/store/memory"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recordSender struct {
	mu     sync.Mutex
	name   string
	titles []string
	err    error
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func (r *recordSender) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...)
}

func TestFormat(t *testing.T) {
	title, body := Format("arb", domain.Event{
		Type: domain.EventOrderFilled, Cycle: "eth-hedge", GroupID: "g1", Message: "buy filled",
		Fields: map[string]string{"venue": "alpha", "avg_price": "0.0502"},
	})
	assert.Equal(t, "[arb] order_filled eth-hedge", title)
	assert.Equal(t, "buy filled\ngroup=g1\navg_price=0.0502\nvenue=alpha", body)
}

func TestNotifier_FiltersAndDelivers(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"cycle_placed", " tick_failed "}, "", quiet())

	ctx := context.Background()
	n.Emit(ctx, domain.Event{Type: domain.EventCyclePlaced, Cycle: "c"})
	n.Emit(ctx, domain.Event{Type: domain.EventOrderFilled, Cycle: "c"})
	n.Emit(ctx, domain.Event{Type: domain.EventTickFailed, Cycle: "c"})
	require.NoError(t, n.Close())

	assert.ElementsMatch(t, []string{"cycle_placed c", "tick_failed c"}, s.got())
	assert.True(t, n.Wants(domain.EventTickFailed))
	assert.False(t, n.Wants(domain.EventPlanPromoted))
}

func TestNotifier_DispatchCollectsFailures(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordSender{name: "bad", err: boom}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, "", quiet())

	err := n.Dispatch(context.Background(), "t", "m")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Equal(t, []string{"t"}, good.got(), "a failing sender does not block the others")
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42").WithBaseURL(srv.URL + "/")
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"retry_after":1}`))
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "retry_after")
}

func TestFanoutAndAuditSink(t *testing.T) {
	audit := memory.NewAuditStore()
	rec := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{rec}, nil, "", quiet())
	sink := Fanout{NewAuditSink(audit, quiet()), nil, n}

	sink.Emit(context.Background(), domain.Event{
		Type: domain.EventOrderCanceled, Cycle: "c", GroupID: "g", Fields: map[string]string{"venue": "beta"},
	})
	require.NoError(t, n.Close())

	entries, err := audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "event.order_canceled", entries[0].Event)
	assert.Equal(t, "beta", entries[0].Detail["venue"])
	assert.Equal(t, "g", entries[0].Detail["group_id"])
	assert.Len(t, rec.got(), 1)
}

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const (
	// wsWriteWait is the time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// wsPongWait is the time allowed to read the next pong message.
	wsPongWait = 30 * time.Second

	// wsPingPeriod must be less than wsPongWait.
	wsPingPeriod = (wsPongWait * 9) / 10

	wsReconnectDelay    = 2 * time.Second
	wsMaxReconnectDelay = 60 * time.Second
)

// DepthStream keeps the latest ladder per subscribed symbol from a venue's
// websocket depth channel. Ladders older than maxAge are not served.
type DepthStream struct {
	url     string
	venue   string
	symbols []string
	maxAge  time.Duration
	logger  *slog.Logger
	dialer  websocket.Dialer
	now     func() time.Time

	mu      sync.RWMutex
	ladders map[string]domain.Ladder
}

// NewDepthStream creates a stream for insts, which must all trade on the
// same venue.
func NewDepthStream(wsURL string, insts []domain.Instrument, maxAge time.Duration, logger *slog.Logger) *DepthStream {
	s := &DepthStream{
		url:     wsURL,
		maxAge:  maxAge,
		dialer:  websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		now:     time.Now,
		ladders: make(map[string]domain.Ladder, len(insts)),
	}
	seen := map[string]bool{}
	for _, inst := range insts {
		s.venue = inst.Venue
		if !seen[inst.Symbol()] {
			seen[inst.Symbol()] = true
			s.symbols = append(s.symbols, inst.Symbol())
		}
	}
	s.logger = logger.With(slog.String("component", "depth_stream"), slog.String("venue", s.venue))
	return s
}

// Latest returns a copy of the last ladder received for inst if it is
// fresher than maxAge.
func (s *DepthStream) Latest(inst domain.Instrument) (domain.Ladder, bool) {
	s.mu.RLock()
	l, ok := s.ladders[inst.Symbol()]
	s.mu.RUnlock()
	if !ok || s.now().Sub(l.FetchedAt) > s.maxAge {
		return domain.Ladder{}, false
	}
	l = l.Clone()
	l.Instrument = inst
	return l, true
}

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff.
func (s *DepthStream) Run(ctx context.Context) error {
	delay := wsReconnectDelay
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = wsReconnectDelay
		}
		s.logger.Warn("depth stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
		if delay > wsMaxReconnectDelay {
			delay = wsMaxReconnectDelay
		}
	}
}

// session runs one connection. connected reports whether the dial and
// subscribe succeeded.
func (s *DepthStream) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("rest/ws: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	var writeMu sync.Mutex
	write := func(msgType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteMessage(msgType, data)
	}

	sub, _ := json.Marshal(wsSubscribe{Op: "subscribe", Channel: "depth", Symbols: s.symbols})
	if err := write(websocket.TextMessage, sub); err != nil {
		return false, fmt.Errorf("rest/ws: subscribe: %w", err)
	}
	s.logger.Info("depth stream connected", slog.Any("symbols", s.symbols))

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// Unblocks ReadMessage below.
				conn.Close()
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("rest/ws: read: %w", err)
		}
		if err := s.handleMessage(data); err != nil {
			s.logger.Debug("depth frame dropped", slog.String("error", err.Error()))
		}
	}
}

var errUnknownFrame = errors.New("unknown frame type")

func (s *DepthStream) handleMessage(data []byte) error {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	switch msg.Type {
	case "depth":
		var d depthResponse
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return fmt.Errorf("decode depth: %w", err)
		}
		symbol := strings.ToUpper(msg.Symbol)
		if symbol == "" {
			symbol = strings.ToUpper(d.Symbol)
		}
		// Staleness is judged on arrival, not on the venue's clock.
		l := d.ladder(domain.Instrument{Venue: s.venue}, s.now().UTC())
		l.FetchedAt = s.now().UTC()
		s.mu.Lock()
		s.ladders[symbol] = l
		s.mu.Unlock()
		return nil
	case "subscribed", "pong", "heartbeat":
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownFrame, msg.Type)
	}
}

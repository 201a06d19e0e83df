// Package realtime subscribes to push events from the hosted backend so
// cached jobs refresh when dispatchers change assignments or statuses.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/kpereira/fieldsync/internal/remote"
)

// Envelope wraps every push message.
type Envelope struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

// Push event types the listener reacts to.
const (
	EventJobAssigned      = "job.assigned"
	EventJobStatusChanged = "job.status_changed"
	EventJobUnassigned    = "job.unassigned"
)

// Refresher re-fetches and re-caches jobs. Satisfied by
// service.JobService.
type Refresher interface {
	RefreshJobs(ctx context.Context, scope remote.Scope) error
}

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	readDeadline   = 60 * time.Second
)

// Listener maintains one websocket connection to the backend and asks
// the Refresher to reload the job cache whenever a relevant event
// arrives. Connection failures back off and retry until Stop.
type Listener struct {
	url       string
	scope     remote.Scope
	refresher Refresher
	log       *logrus.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a Listener for the push endpoint at url. A nil
// logger falls back to the logrus standard logger.
func NewListener(url string, scope remote.Scope, refresher Refresher, log *logrus.Logger) *Listener {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Listener{
		url:       url,
		scope:     scope,
		refresher: refresher,
		log:       log,
	}
}

// Start runs the connect/read loop in the background until Stop.
func (l *Listener) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(ctx)
}

// Stop tears down the connection and waits for the loop to exit.
func (l *Listener) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel = nil
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.url, nil)
		if err != nil {
			l.log.WithError(err).WithField("backoff", backoff.String()).Debug("push connect failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		l.log.Info("push connection established")
		backoff = initialBackoff

		l.read(ctx, conn)
		conn.Close()
	}
}

// read consumes envelopes until the connection breaks or ctx ends.
func (l *Listener) read(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage when Stop is called.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.log.WithError(err).Warn("push connection lost")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			l.log.WithError(err).Debug("discarding malformed push message")
			continue
		}
		l.handle(ctx, env)
	}
}

func (l *Listener) handle(ctx context.Context, env Envelope) {
	switch env.Type {
	case EventJobAssigned, EventJobStatusChanged, EventJobUnassigned:
		l.log.WithField("event", env.Type).Debug("job push received, refreshing cache")
		if err := l.refresher.RefreshJobs(ctx, l.scope); err != nil {
			l.log.WithError(err).Warn("failed to refresh jobs after push")
		}
	default:
		// Other event families are broadcast to all tenants; ignore.
	}
}

package coordinator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"livecast/internal/metrics"
	"livecast/internal/models"
	"livecast/internal/notifier"
	"livecast/internal/store"
)

const (
	DefaultHeartbeatTTL  = 60 * time.Second
	DefaultGracePeriod   = time.Minute
	DefaultSweepInterval = 5 * time.Second
)

// Coordinator reconciles lifecycle signals from the control-plane API and
// the ingest layer into the session registry, tracks viewer presence, and
// fans events out to connected clients. The in-memory registry is the source
// of truth for real-time behavior; sqlite rows are a best-effort mirror and
// a mirror failure never rolls back an applied transition.
type Coordinator struct {
	registry *Registry
	presence *Presence
	bus      *Bus
	store    *store.Store
	notifier *notifier.Notifier
	metrics  *metrics.Metrics

	heartbeatTTL  time.Duration
	gracePeriod   time.Duration
	sweepInterval time.Duration

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	triggerSweep chan struct{}
	sweepNotify  chan struct{}
}

type Option func(*Coordinator)

func WithNotifier(n *notifier.Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithHeartbeatTTL sets how long a published stream may go without an ingest
// signal before it is treated as done publishing.
func WithHeartbeatTTL(d time.Duration) Option {
	return func(c *Coordinator) { c.heartbeatTTL = d }
}

// WithGracePeriod sets how long ended sessions stay queryable before
// eviction.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Coordinator) { c.gracePeriod = d }
}

func WithSweepInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.sweepInterval = d }
}

func New(s *store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry:      NewRegistry(),
		bus:           NewBus(),
		store:         s,
		heartbeatTTL:  DefaultHeartbeatTTL,
		gracePeriod:   DefaultGracePeriod,
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	// Presence notifications are emitted with the tracker lock held so
	// that a room's counts reach the bus in mutation order. The bus only
	// does non-blocking buffered sends there; socket I/O happens in each
	// subscriber's own writer.
	c.presence = NewPresence(func(sessionID string, count int) {
		c.bus.PublishRoom(sessionID, models.Event{
			Type:      models.EventPresenceChanged,
			SessionID: sessionID,
			Count:     count,
		})
	})
	if c.metrics != nil {
		c.bus.OnMiss(c.metrics.IncEventsDropped)
	}
	c.bus.OnDrop(func(connID string) {
		log.Printf("dropping slow subscriber %s", connID)
		c.Disconnect(connID)
	})
	return c
}

// Start launches the background sweeper that enforces heartbeat timeouts and
// evicts ended sessions after the grace period.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		c.done = make(chan struct{})
		go c.run(ctx)
	})
}

func (c *Coordinator) Stop() {
	if c.cancel != nil && c.done != nil {
		c.cancel()
		<-c.done
	}
}

// StartSession begins a session for a stream key on behalf of the control
// plane. If the key is already live the existing session is returned with
// models.ErrAlreadyLive.
func (c *Coordinator) StartSession(streamKey, title, description string) (models.StreamSession, error) {
	session, err := c.registry.Begin(streamKey, title, description, models.SourceControl)
	if err != nil {
		return session, err
	}
	c.streamStarted(session)
	return session, nil
}

// StopSession ends the live session for a stream key on behalf of the
// control plane. models.ErrNotLive means there was nothing to stop, which is
// an expected outcome of redundant stop signals.
func (c *Coordinator) StopSession(streamKey string) error {
	return c.end(streamKey, models.SourceControl)
}

// HandlePrePublish is informational: the ingest layer decides on its own
// whether to allow the publish, so a key unknown here does not block it.
func (c *Coordinator) HandlePrePublish(streamKey string) {
	if _, err := c.registry.LookupKey(streamKey); err != nil {
		log.Printf("pre-publish for idle key %s", keyDigest(streamKey))
		return
	}
	log.Printf("pre-publish for live key %s", keyDigest(streamKey))
}

// HandlePostPublish begins a session when the ingest layer reports a
// publisher. If the control plane already started the key, the publish
// degrades to a heartbeat for the existing session.
func (c *Coordinator) HandlePostPublish(streamKey string) {
	title, description := c.recordedMetadata(streamKey)
	session, err := c.registry.Begin(streamKey, title, description, models.SourceIngest)
	if errors.Is(err, models.ErrAlreadyLive) {
		if err := c.registry.Touch(streamKey); err != nil {
			log.Printf("publish heartbeat for %s: %v", keyDigest(streamKey), err)
		}
		return
	}
	if err := c.registry.Touch(streamKey); err != nil {
		log.Printf("publish heartbeat for %s: %v", keyDigest(streamKey), err)
	}
	c.streamStarted(session)
}

// HandleDonePublish ends a session when the ingest layer reports the
// publisher gone. Racing or duplicate unpublish signals are no-ops.
func (c *Coordinator) HandleDonePublish(streamKey string) {
	if err := c.end(streamKey, models.SourceIngest); err != nil && !errors.Is(err, models.ErrNotLive) {
		log.Printf("done-publish for %s: %v", keyDigest(streamKey), err)
	}
}

// HandleHeartbeat records an ingest keep-alive for a live stream key.
func (c *Coordinator) HandleHeartbeat(streamKey string) error {
	return c.registry.Touch(streamKey)
}

// Subscribe registers a client connection for event delivery.
func (c *Coordinator) Subscribe(connID string) *Subscriber {
	return c.bus.Subscribe(connID)
}

// Join places a connection in a session's room and returns the new viewer
// count. Only live sessions accept joiners.
func (c *Coordinator) Join(sessionID, connID string) (int, error) {
	session, err := c.registry.Lookup(sessionID)
	if err != nil {
		return 0, err
	}
	if session.State != models.SessionStateLive {
		return 0, models.ErrNotFound
	}
	c.bus.SetRoom(connID, sessionID)
	count := c.presence.Join(sessionID, connID)
	c.refreshGauges()
	return count, nil
}

// Leave removes a connection from a session's room and returns the new
// viewer count. Leaving a room the connection is not in is a no-op: the
// connection keeps its actual room membership and event delivery.
func (c *Coordinator) Leave(sessionID, connID string) (int, error) {
	count, left := c.presence.Leave(sessionID, connID)
	if !left {
		return count, nil
	}
	c.bus.SetRoom(connID, "")
	c.reapRoom(sessionID)
	c.refreshGauges()
	return count, nil
}

// Disconnect cleans up a terminated connection: it is removed from its room,
// the room is notified, and the subscription is torn down. Safe to call for
// connections that never joined anything.
func (c *Coordinator) Disconnect(connID string) {
	if sessionID, _, ok := c.presence.Disconnect(connID); ok {
		c.reapRoom(sessionID)
	}
	c.bus.Unsubscribe(connID)
	c.refreshGauges()
}

// CountOf returns the current viewer count of a session's room.
func (c *Coordinator) CountOf(sessionID string) int {
	return c.presence.CountOf(sessionID)
}

// Lookup returns the viewer-facing view of a session.
func (c *Coordinator) Lookup(sessionID string) (models.PublicStream, error) {
	session, err := c.registry.Lookup(sessionID)
	if err != nil {
		return models.PublicStream{}, err
	}
	return c.public(session), nil
}

// ListLive returns all live sessions with viewer counts, most recently
// started first. Raw stream keys are never included.
func (c *Coordinator) ListLive() []models.PublicStream {
	sessions := c.registry.ListLive()
	result := make([]models.PublicStream, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, c.public(s))
	}
	return result
}

// TotalViewers returns the number of connections currently in any room,
// including rooms of ended sessions still draining through the grace period.
func (c *Coordinator) TotalViewers() int {
	return c.presence.Total()
}

func (c *Coordinator) public(s models.StreamSession) models.PublicStream {
	return models.PublicStream{
		SessionID:   s.SessionID,
		Title:       s.Title,
		Description: s.Description,
		StartedAt:   s.StartedAt,
		ViewerCount: c.presence.CountOf(s.SessionID),
	}
}

func (c *Coordinator) streamStarted(session models.StreamSession) {
	if c.store != nil {
		rec := &models.StreamRecord{
			SessionID:   session.SessionID,
			StreamKey:   session.StreamKey,
			Title:       session.Title,
			Description: session.Description,
			Live:        true,
			StartedAt:   session.StartedAt,
		}
		if err := c.store.CreateStream(rec); err != nil {
			log.Printf("mirroring stream %s: %v", session.SessionID, err)
		}
	}
	pub := c.public(session)
	c.bus.PublishAll(models.Event{
		Type:      models.EventStreamStarted,
		SessionID: session.SessionID,
		Stream:    &pub,
	})
	if c.metrics != nil {
		c.metrics.IncStreamsStarted()
	}
	c.refreshGauges()
	c.notifyAsync(func(ctx context.Context, n *notifier.Notifier) error {
		return n.StreamStarted(ctx, &pub)
	})
}

func (c *Coordinator) end(streamKey string, source models.Source) error {
	session, err := c.registry.End(streamKey, source)
	if err != nil {
		return err
	}

	peak := c.presence.PeakOf(session.SessionID)
	if c.store != nil {
		if err := c.store.MarkEnded(session.SessionID, session.EndedAt, peak); err != nil {
			log.Printf("mirroring end of stream %s: %v", session.SessionID, err)
		}
	}
	c.bus.PublishAll(models.Event{
		Type:      models.EventStreamEnded,
		SessionID: session.SessionID,
	})
	if c.metrics != nil {
		c.metrics.IncStreamsEnded()
	}
	c.refreshGauges()

	// Empty rooms go right away; occupied ones drain via leave/disconnect
	// and the eviction sweep.
	if c.presence.DropRoomIfEmpty(session.SessionID) {
		if err := c.registry.Evict(session.SessionID); err != nil {
			log.Printf("evicting session %s: %v", session.SessionID, err)
		}
	}

	pub := c.public(session)
	c.notifyAsync(func(ctx context.Context, n *notifier.Notifier) error {
		return n.StreamEnded(ctx, &pub)
	})
	return nil
}

// reapRoom drops a room's bookkeeping once it is empty and its session is no
// longer live. Live rooms are kept at zero viewers for late joiners.
func (c *Coordinator) reapRoom(sessionID string) {
	if c.presence.CountOf(sessionID) > 0 {
		return
	}
	session, err := c.registry.Lookup(sessionID)
	if err == nil && session.State == models.SessionStateLive {
		return
	}
	c.presence.DropRoomIfEmpty(sessionID)
}

func (c *Coordinator) recordedMetadata(streamKey string) (title, description string) {
	if c.store == nil {
		return "", ""
	}
	rec, err := c.store.LatestStreamByKey(streamKey)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Printf("looking up metadata for %s: %v", keyDigest(streamKey), err)
		}
		return "", ""
	}
	return rec.Title, rec.Description
}

func (c *Coordinator) notifyAsync(send func(context.Context, *notifier.Notifier) error) {
	if c.notifier == nil {
		return
	}
	n := c.notifier
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := send(ctx, n); err != nil {
			log.Printf("sending notification: %v", err)
		}
	}()
}

func (c *Coordinator) refreshGauges() {
	if c.metrics == nil {
		return
	}
	c.metrics.SetLiveStreams(len(c.registry.ListLive()))
	c.metrics.SetViewers(c.TotalViewers())
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		case <-c.triggerSweep:
			c.sweep()
		}
	}
}

// sweep ends live sessions whose ingest heartbeats have gone quiet and
// evicts ended sessions past the grace period. Heartbeat absence is treated
// exactly like a done-publish signal.
func (c *Coordinator) sweep() {
	now := time.Now().UTC()

	for _, s := range c.registry.Stale(now.Add(-c.heartbeatTTL)) {
		log.Printf("heartbeat timeout for session %s (last seen %v)", s.SessionID, s.LastSeen)
		if err := c.end(s.StreamKey, models.SourceIngest); err != nil && !errors.Is(err, models.ErrNotLive) {
			log.Printf("ending stale session %s: %v", s.SessionID, err)
		}
	}

	for _, s := range c.registry.EndedBefore(now.Add(-c.gracePeriod)) {
		if err := c.registry.Evict(s.SessionID); err != nil {
			log.Printf("evicting session %s: %v", s.SessionID, err)
			continue
		}
		c.reapRoom(s.SessionID)
	}

	c.refreshGauges()

	if c.sweepNotify != nil {
		select {
		case c.sweepNotify <- struct{}{}:
		default:
		}
	}
}

// keyDigest abbreviates a stream key for logs without exposing it.
func keyDigest(streamKey string) string {
	if len(streamKey) <= 4 {
		return "****"
	}
	return streamKey[:4] + "****"
}

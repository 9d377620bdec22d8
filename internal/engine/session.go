package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sho7650/media-wall/internal/activity"
	"github.com/sho7650/media-wall/internal/core"
	"github.com/sho7650/media-wall/internal/playback"
	"github.com/sho7650/media-wall/internal/reconcile"
	"github.com/sho7650/media-wall/internal/sequence"
	"github.com/sho7650/media-wall/internal/storage"
	"github.com/sho7650/media-wall/internal/stream"
	"github.com/sho7650/media-wall/internal/timing"
)

const journalTimeout = 5 * time.Second

// session is everything created for one share token. Apart from the
// adapter, its fields are only touched from loop turns.
type session struct {
	token   string
	role    string
	sched   timing.Scheduler
	stop    func()
	journal storage.Journal
	ttl     time.Duration
	log     zerolog.Logger

	store   *sequence.Store
	adapter *stream.Adapter
	reg     *stream.Registration
	recon   *reconcile.Controller
	play    *playback.Controller
	act     *activity.Notifier

	stats    core.ViewerStats
	newFlags map[string]timing.Timer
	closed   bool

	// gone is closed once the loop is stopped
	gone chan struct{}
}

func newSession(token string, opts Options, logger zerolog.Logger) *session {
	log := logger.With().Str("share_token", token).Logger()
	sched, stop := opts.NewScheduler(log)

	s := &session{
		token:    token,
		role:     opts.Role,
		sched:    sched,
		stop:     stop,
		journal:  opts.Journal,
		ttl:      opts.NewFlagTTL,
		log:      log,
		newFlags: make(map[string]timing.Timer),
		gone:     make(chan struct{}),
	}

	s.store = sequence.NewStore(sequence.WithOffsets(opts.Offsets), sequence.WithLogger(log))
	s.play = playback.NewController(sched, s.store, log)
	s.act = activity.NewNotifier(sched, opts.Activity, log)
	s.recon = reconcile.NewController(sched, opts.Fetcher, s.store, token, opts.Reconcile, reconcile.Hooks{
		Applied:   s.applied,
		Completed: s.completed,
	}, log)

	if opts.NewTransport != nil {
		s.adapter = stream.NewAdapter(opts.NewTransport(), sched, sched.Now, log)
		s.reg = s.adapter.Register(stream.Handlers{
			MediaUploaded:        s.mediaUploaded,
			MediaQualityUpgraded: s.qualityUpgraded,
			MediaRemoved:         s.mediaRemoved,
			StatsUpdated:         s.statsUpdated,
			ViewerCountUpdated:   s.viewerCountUpdated,
			ConnectionChanged:    s.connectionChanged,
		})
	}
	return s
}

// start issues the initial pull and opens the push channel
func (s *session) start(ctx context.Context) error {
	if err := s.call(ctx, func() { s.recon.Start() }); err != nil {
		return err
	}
	if s.adapter == nil {
		s.log.Warn().Msg("no push channel configured, relying on fallback pulls")
		return nil
	}
	if err := s.adapter.Open(ctx, stream.Room{ShareToken: s.token, Role: s.role}); err != nil {
		s.log.Error().Err(err).Msg("push channel unavailable, relying on fallback pulls")
	}
	return nil
}

// call runs f as a loop turn and waits for it
func (s *session) call(ctx context.Context, f func()) error {
	done := make(chan struct{})
	if !s.sched.Post(func() {
		defer close(done)
		if !s.closed {
			f()
		}
	}) {
		return core.ErrNotAttached
	}
	select {
	case <-done:
		return nil
	case <-s.gone:
		select {
		case <-done:
			return nil
		default:
			return core.ErrNotAttached
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close releases the push channel, every timer and the loop
func (s *session) close() {
	s.reg.Unregister()
	if s.adapter != nil {
		if err := s.adapter.Close(); err != nil {
			s.log.Warn().Err(err).Msg("failed to close push channel")
		}
	}

	done := make(chan struct{})
	if s.sched.Post(func() {
		defer close(done)
		s.teardown()
	}) {
		<-done
	}
	s.stop()
	close(s.gone)
}

func (s *session) teardown() {
	if s.closed {
		return
	}
	s.closed = true
	s.recon.Close()
	s.play.Close()
	s.act.Close()
	for id, t := range s.newFlags {
		t.Stop()
		delete(s.newFlags, id)
	}
}

func (s *session) mediaUploaded(p stream.MediaUploaded) {
	if s.closed {
		return
	}
	settings := s.play.Settings()
	item := core.MediaItem{
		ID:           p.MediaID,
		ImageURL:     p.ImageURL,
		UploaderName: p.UploaderName,
		UploadedAt:   p.UploadedAt,
	}
	if !settings.ShowUploaderNames {
		item.UploaderName = ""
	}

	if _, inserted := s.store.Insert(item, settings.NewImageInsertion); inserted {
		s.markNew(item.ID)
		s.play.LengthChanged()
	}
	s.trigger(activity.KindUploading)
}

func (s *session) markNew(id string) {
	if s.ttl <= 0 {
		s.store.ClearNewFlag(id)
		return
	}
	if t, ok := s.newFlags[id]; ok {
		t.Stop()
	}
	s.newFlags[id] = s.sched.AfterFunc(s.ttl, func() {
		delete(s.newFlags, id)
		s.store.ClearNewFlag(id)
	})
}

func (s *session) forgetNew(id string) {
	if t, ok := s.newFlags[id]; ok {
		t.Stop()
		delete(s.newFlags, id)
	}
}

func (s *session) qualityUpgraded(p stream.QualityUpgraded) {
	if s.closed {
		return
	}
	s.store.UpdateInPlace(p.MediaID, p.ImageURL)
	s.trigger(activity.KindQualityUpgraded)
}

func (s *session) mediaRemoved(p stream.MediaRemoved) {
	if s.closed {
		return
	}
	if _, removed := s.store.Remove(p.MediaID); removed {
		s.forgetNew(p.MediaID)
		s.play.LengthChanged()
	}
	s.trigger(activity.KindRemoving)
}

func (s *session) statsUpdated(p stream.StatsUpdated) {
	if s.closed {
		return
	}
	s.stats.TotalImages = p.TotalImages
	s.stats.LastUpdated = s.sched.Now()
}

func (s *session) viewerCountUpdated(p stream.ViewerCountUpdated) {
	if s.closed {
		return
	}
	s.stats.ViewerCount = p.ViewerCount
	s.stats.LastUpdated = s.sched.Now()
}

func (s *session) connectionChanged(state stream.ConnectionState) {
	if s.closed {
		return
	}
	s.recon.ConnectionChanged(state.Connected, state.Authenticated)
}

func (s *session) trigger(kind activity.Kind) {
	if err := s.act.Trigger(kind); err != nil {
		s.log.Warn().Err(err).Msg("activity trigger failed")
	}
}

// applied runs after every successful pull
func (s *session) applied(snap *core.Snapshot, replaced bool) {
	s.play.ApplySettings(snap.Settings)
	if !snap.Settings.ShowUploaderNames {
		s.store.ClearUploaderNames()
	}

	s.stats.TotalImages = len(snap.Items)
	if snap.Stats != nil {
		if snap.Stats.TotalImages != nil {
			s.stats.TotalImages = *snap.Stats.TotalImages
		}
		if snap.Stats.ViewerCount != nil {
			s.stats.ViewerCount = *snap.Stats.ViewerCount
		}
	}
	s.stats.LastUpdated = s.sched.Now()
	if replaced {
		for id := range s.newFlags {
			if !s.store.Contains(id) {
				s.forgetNew(id)
			}
		}
		s.play.LengthChanged()
	}
}

// completed writes the pull outcome to the journal off the loop
func (s *session) completed(o reconcile.Outcome) {
	if s.journal == nil {
		return
	}
	record := &storage.PullRecord{
		ShareToken: o.ShareToken,
		RequestID:  o.RequestID,
		Reason:     string(o.Reason),
		SessionID:  o.SessionID,
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
		ItemCount:  o.ItemCount,
		Replaced:   o.Replaced,
	}
	if o.Err != nil {
		record.Error = o.Err.Error()
	}

	journal := s.journal
	log := s.log
	s.sched.Go(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		defer cancel()
		if err := journal.RecordPull(ctx, record); err != nil {
			log.Warn().Err(err).Str("request_id", record.RequestID).Msg("failed to journal pull")
		}
		return nil
	})
}

package engine

import (
	"github.com/sho7650/media-wall/internal/activity"
	"github.com/sho7650/media-wall/internal/core"
	"github.com/sho7650/media-wall/internal/playback"
	"github.com/sho7650/media-wall/internal/stream"
)

// View is a copy of the session state for display UIs
type View struct {
	ShareToken   string                 `json:"shareToken"`
	Items        []core.MediaItem       `json:"items"`
	Cursor       int                    `json:"cursor"`
	Current      *core.MediaItem        `json:"current,omitempty"`
	State        playback.State         `json:"state"`
	Playback     core.PlaybackState     `json:"playback"`
	Settings     core.Settings          `json:"settings"`
	Stats        core.ViewerStats       `json:"stats"`
	Activity     activity.Snapshot      `json:"activity"`
	Connection   stream.ConnectionState `json:"connection"`
	Stream       stream.Stats           `json:"stream"`
	Sync         core.SyncMeta          `json:"sync"`
	InitialError string                 `json:"initialError,omitempty"`
}

func (s *session) view() View {
	v := View{
		ShareToken: s.token,
		Items:      s.store.Items(),
		Cursor:     s.store.Cursor(),
		State:      s.play.State(),
		Playback:   s.play.Snapshot(),
		Settings:   s.play.Settings(),
		Stats:      s.stats,
		Activity:   s.act.Snapshot(),
		Sync:       s.recon.Meta(),
	}
	if item, ok := s.store.Current(); ok {
		v.Current = &item
	}
	if s.adapter != nil {
		v.Connection = s.adapter.State()
		v.Stream = s.adapter.Stats()
	}
	if err := s.recon.InitialError(); err != nil {
		v.InitialError = err.Error()
	}
	return v
}

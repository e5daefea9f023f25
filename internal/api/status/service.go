// Package status provides the read-only HTTP status API.
package status

import (
	"encoding/json"
	"net/http"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/app/session/state"
	"github.com/osa030/guildbox/internal/domain/track"
)

// Backend is the part of the session manager the status API reads.
type Backend interface {
	Sessions() []playback.Status
	Info() state.Info
	CanAcceptRequests() bool
	GetNotificationManager() *notification.Manager
}

// Service serves session status over HTTP.
type Service struct {
	backend Backend
	token   string
}

// NewService creates a new status service. A non-empty token protects /api/ routes.
func NewService(backend Backend, token string) *Service {
	return &Service{
		backend: backend,
		token:   token,
	}
}

// Handler returns the HTTP routes of the service.
func (s *Service) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/info", s.getInfo)
	api.HandleFunc("GET /api/sessions", s.listSessions)
	api.HandleFunc("GET /api/notifications", s.streamNotifications)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.Handle("/api/", NewTokenAuth(s.token, api))
	return mux
}

// TrackView is the JSON form of a track.
type TrackView struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	DurationSec int64  `json:"duration_sec"`
	Requester   string `json:"requester"`
	Playlist    string `json:"playlist,omitempty"`
}

// PlaylistView is the JSON form of an open playlist.
type PlaylistView struct {
	Title      string `json:"title"`
	NextOffset int    `json:"next_offset"`
}

// SessionView is the JSON form of one guild session.
type SessionView struct {
	PlayerID         string        `json:"player_id"`
	GuildID          string        `json:"guild_id"`
	ChannelID        string        `json:"channel_id"`
	State            string        `json:"state"`
	Current          *TrackView    `json:"current,omitempty"`
	PositionSec      int64         `json:"position_sec"`
	VolumePercent    int           `json:"volume_percent"`
	Repeat           string        `json:"repeat"`
	Shuffle          bool          `json:"shuffle"`
	QueueLength      int           `json:"queue_length"`
	QueueDurationSec int64         `json:"queue_duration_sec"`
	Playlist         *PlaylistView `json:"playlist,omitempty"`
}

// SessionsResponse is the body of GET /api/sessions.
type SessionsResponse struct {
	Sessions []SessionView `json:"sessions"`
}

func (s *Service) healthz(w http.ResponseWriter, _ *http.Request) {
	code := http.StatusOK
	status := "ok"
	if !s.backend.CanAcceptRequests() {
		code = http.StatusServiceUnavailable
		status = s.backend.Info().Phase
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func (s *Service) getInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Info())
}

func (s *Service) listSessions(w http.ResponseWriter, _ *http.Request) {
	statuses := s.backend.Sessions()
	resp := SessionsResponse{Sessions: make([]SessionView, 0, len(statuses))}
	for _, st := range statuses {
		resp.Sessions = append(resp.Sessions, sessionView(st))
	}
	writeJSON(w, http.StatusOK, resp)
}

func sessionView(st playback.Status) SessionView {
	v := SessionView{
		PlayerID:         st.PlayerID,
		GuildID:          st.GuildID.String(),
		ChannelID:        st.ChannelID.String(),
		State:            st.State.String(),
		PositionSec:      seconds(st.Position),
		VolumePercent:    notification.VolumePercent(st.Volume),
		Repeat:           st.Repeat.String(),
		Shuffle:          st.Shuffle,
		QueueLength:      st.QueueLength,
		QueueDurationSec: seconds(st.QueueDuration),
	}
	if st.Current != nil {
		tv := trackView(*st.Current)
		v.Current = &tv
	}
	if st.Playlist != nil {
		v.Playlist = &PlaylistView{Title: st.Playlist.Title, NextOffset: st.Playlist.Offset}
	}
	return v
}

func trackView(t track.Track) TrackView {
	return TrackView{
		Title:       t.Title,
		URL:         t.WebpageURL,
		DurationSec: seconds(t.Duration),
		Requester:   t.Requester.Name,
		Playlist:    t.SourcePlaylist,
	}
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Msgf("status: failed to write response: err=%v", err)
	}
}

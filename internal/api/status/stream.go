package status

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/notification"
)

const streamBuffer = 32

var errSlowSubscriber = errors.New("subscriber buffer full")

// streamNotifications sends player notifications as server-sent events until the client goes away.
func (s *Service) streamNotifications(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	notifManager := s.backend.GetNotificationManager()
	sub := &eventStream{ch: make(chan notification.Notification, streamBuffer)}
	id := notifManager.Subscribe(sub)
	defer notifManager.Unsubscribe(id)
	zlog.Debug().Msgf("status: subscriber connected: id=%s", id)

	for {
		select {
		case <-r.Context().Done():
			zlog.Debug().Msgf("status: subscriber disconnected: id=%s", id)
			return
		case n := <-sub.ch:
			data, err := json.Marshal(n)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", n.SequenceNo, n.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// eventStream adapts an HTTP subscriber to notification.Stream.
type eventStream struct {
	ch chan notification.Notification
}

// Send queues n without blocking; a subscriber that falls behind loses notifications.
func (e *eventStream) Send(n notification.Notification) error {
	select {
	case e.ch <- n:
		return nil
	default:
		return errSlowSubscriber
	}
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/delivery/http/request"
	"github.com/user/scrape-orchestrator/internal/entity"
	"github.com/user/scrape-orchestrator/internal/repository"
)

const (
	subscribeWait = 30 * time.Second
	writeWait     = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// HandleWebSocket sends the terminal event of one job and closes. The job id
// comes from the jobId query parameter or a {"subscribe": id} message.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		var msg request.SubscribeMessage
		conn.SetReadDeadline(time.Now().Add(subscribeWait))
		if err := conn.ReadJSON(&msg); err != nil || msg.Subscribe == "" {
			h.closeWith(conn, websocket.ClosePolicyViolation, "expected {\"subscribe\": jobId}")
			return
		}
		conn.SetReadDeadline(time.Time{})
		jobID = msg.Subscribe
	}
	log := h.logger.With(zap.String("job_id", jobID))

	sub := h.events.Subscribe(jobID)
	defer sub.Close()

	// Subscribing before the lookup means a job that finishes in between is
	// still seen through one of the two paths.
	job, err := h.jobs.GetStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			h.closeWith(conn, websocket.ClosePolicyViolation, "job not found")
			return
		}
		log.Error("status lookup for websocket failed", zap.Error(err))
		h.closeWith(conn, websocket.CloseInternalServerErr, "status lookup failed")
		return
	}
	if job.Status.IsTerminal() {
		h.sendEvent(conn, entity.EventFor(job), log)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	select {
	case evt, ok := <-sub.C():
		if ok {
			h.sendEvent(conn, evt, log)
		}
	case <-ctx.Done():
		log.Debug("websocket client went away")
	}
}

func (h *Handler) sendEvent(conn *websocket.Conn, evt entity.JobEvent, log *zap.Logger) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(evt); err != nil {
		log.Warn("failed to write job event", zap.Error(err))
		return
	}
	h.closeWith(conn, websocket.CloseNormalClosure, string(evt.Type))
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

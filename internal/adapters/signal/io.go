package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

func (ctl *ChatWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *ChatWSController) readPump(ctx context.Context, cancel context.CancelFunc, ms core.MemberSession, c *WsSignalConn) {
	m := ms.Meta()
	defer func() {
		log.Info().Str("module", "signal").Str("room", string(m.Room)).Str("user", string(m.Identity)).
			Str("conn", m.ConnID).Msg("readPump closing")
		ctl.Orch.Leave(context.Background(), m)
		c.Close()
		cancel()
	}()

	pongWait := ctl.opts.pongWait()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", m.ConnID).Msg("readPump read error")
			}
			return
		}
		ctl.handleFrame(ctx, ms, data)
	}
}

func (ctl *ChatWSController) handleFrame(ctx context.Context, ms core.MemberSession, data []byte) {
	m := ms.Meta()
	in, err := domain.DecodeFrame(data)
	if err == nil {
		err = ctl.Orch.Ingest(ctx, m, in)
	}
	if err == nil {
		return
	}
	code := orch.ErrorCode(err)
	log.Warn().Err(err).Str("module", "signal").Str("room", string(m.Room)).Str("user", string(m.Identity)).
		Str("code", code).Msg("frame refused")
	ctl.Orch.Notify(ctx, ms, domain.NewErrorEvent(code, ""))
}

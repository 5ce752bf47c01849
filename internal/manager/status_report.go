package manager

import (
	"time"

	"sdserve/pkg/types"
)

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	resp := types.StatusResponse{
		State:     string(m.state),
		LastError: m.err,
	}
	m.mu.RUnlock()
	if m.pipe != nil {
		info := m.pipe.Info()
		resp.Backend = info.Backend
		resp.Model = info.Model
	}
	resp.GenerationsTotal = m.total.Load()
	resp.GenerationsFailed = m.failed.Load()
	resp.Inflight = int(m.inflight.Load())
	resp.MaxQueueDepth = m.maxQueueDepth
	if m.queueCh != nil {
		// queueCh holds queued and running requests alike.
		resp.QueueLen = max(0, len(m.queueCh)-len(m.genCh))
	}
	now := time.Now()
	resp.UptimeSeconds = int64(now.Sub(m.startTime).Seconds())
	resp.ServerTimeUnix = now.Unix()
	return resp
}

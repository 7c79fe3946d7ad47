package engine

import (
	"time"

	"articled/pkg/types"
)

// Status builds a detailed status response for /status.
func (e *Engine) Status() types.StatusResponse {
	e.mu.RLock()
	defer e.mu.RUnlock()

	resp := types.StatusResponse{
		LoadsTotal:     e.loadsTotal,
		State:          string(StateReady),
		LastError:      e.lastError,
		UptimeSeconds:  int64(time.Since(e.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	resp.Instances = make([]types.InstanceStatus, 0, len(e.instances))
	for _, inst := range e.instances {
		if inst.State == StateLoading {
			resp.State = string(StateLoading)
		}
		resp.Instances = append(resp.Instances, types.InstanceStatus{
			Model:         inst.Descriptor.Name,
			State:         string(inst.State),
			LastUsed:      inst.LastUsed.Unix(),
			QueueLen:      len(inst.queueCh),
			Inflight:      len(inst.genCh),
			MaxQueueDepth: cap(inst.queueCh),
		})
	}
	return resp
}

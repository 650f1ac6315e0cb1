package app

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/skunkworks/skunkscrape/internal/orchestrator"
	"github.com/skunkworks/skunkscrape/internal/store"
)

// HistoryRecorder persists every finished plugin run. The batch row is
// written when its first plugin starts.
type HistoryRecorder struct {
	store  *store.Store
	logger zerolog.Logger

	mu        sync.Mutex
	lastBatch string
}

// NewHistoryRecorder creates an observer writing to st.
func NewHistoryRecorder(st *store.Store, logger zerolog.Logger) *HistoryRecorder {
	return &HistoryRecorder{store: st, logger: logger}
}

// PluginStarted records the batch on its first plugin.
func (h *HistoryRecorder) PluginStarted(res orchestrator.Result) {
	h.ensureBatch(res)
}

// ensureBatch writes the batch row once per batch. Plugins skipped after an
// interrupt only report PluginFinished, so both hooks call it.
func (h *HistoryRecorder) ensureBatch(res orchestrator.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if res.BatchID == h.lastBatch {
		return
	}

	params, err := json.Marshal(res.Params)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to encode run parameters.")
		params = []byte("{}")
	}

	err = h.store.Batches().Create(&store.Batch{
		ID:        res.BatchID,
		Target:    res.Target.String(),
		Params:    params,
		CreatedAt: res.StartedAt,
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("batch", res.BatchID).Msg("Failed to record batch.")
		return
	}
	h.lastBatch = res.BatchID
}

// PluginFinished records the run outcome.
func (h *HistoryRecorder) PluginFinished(res orchestrator.Result) {
	h.ensureBatch(res)

	err := h.store.Runs().Create(&store.Run{
		ID:         res.ID,
		BatchID:    res.BatchID,
		Plugin:     res.Plugin,
		Argv:       res.Argv,
		Proxy:      res.Proxy,
		Success:    res.Outcome.Success,
		ExitCode:   res.Outcome.ExitCode,
		Reason:     res.Outcome.Reason,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("run", res.ID).Str("plugin", res.Plugin).Msg("Failed to record run.")
	}
}

package analytics

import "articled/pkg/types"

// Stats summarizes the log for the dashboard: totals, per-model usage, and
// average response length in characters.
func (s *Store) Stats() types.StatsResponse {
	records := s.ReadAll()

	perModel := make(map[string]int)
	prompts := make(map[string]struct{})
	var chars int
	for _, rec := range records {
		perModel[rec.Model]++
		prompts[rec.Prompt] = struct{}{}
		chars += len(rec.Response)
	}

	resp := types.StatsResponse{
		TotalInteractions: len(records),
		UniquePrompts:     len(prompts),
		PerModel:          perModel,
	}
	if len(records) > 0 {
		resp.AvgResponseChars = float64(chars) / float64(len(records))
	}
	best := 0
	for model, n := range perModel {
		if n > best || (n == best && (resp.MostUsedModel == "" || model < resp.MostUsedModel)) {
			best = n
			resp.MostUsedModel = model
		}
	}
	return resp
}

package api

import (
	"encoding/json"

	"github.com/mmcdole/tagflow/internal/domain"
)

// cursorPageResponse is the /api/cursor/videos payload
type cursorPageResponse struct {
	Items      []domain.Video `json:"items"`
	NextCursor *string        `json:"next_cursor"`
	HasMore    *bool          `json:"has_more"`
}

// ackResponse is the acknowledgement returned by every mutation endpoint
type ackResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Video   *domain.Video   `json:"video"`
	Results []itemResultDTO `json:"results"`
}

type itemResultDTO struct {
	VideoID domain.VideoID `json:"video_id"`
	Success bool           `json:"success"`
	Error   string         `json:"error"`
}

type bulkUpdateRequest struct {
	VideoIDs []domain.VideoID    `json:"video_ids"`
	Updates  domain.VideoChanges `json:"updates"`
}

type bulkDeleteRequest struct {
	VideoIDs []domain.VideoID `json:"video_ids"`
}

// toPage validates the shape and converts to the domain page
func (r *cursorPageResponse) toPage() (*domain.Page, error) {
	if r.Items == nil || r.HasMore == nil {
		return nil, domain.ParseError(errMissingFields)
	}
	page := &domain.Page{
		Items:   r.Items,
		HasMore: *r.HasMore,
	}
	if r.NextCursor != nil {
		page.NextCursor = *r.NextCursor
	}
	// A page claiming more without a cursor cannot be continued
	if page.HasMore && page.NextCursor == "" {
		page.HasMore = false
	}
	return page, nil
}

// toBulkResult maps an acknowledgement onto per-id outcomes.
// Without a results array the batch is all-or-nothing.
func (a *ackResponse) toBulkResult(ids []domain.VideoID) domain.BulkResult {
	res := domain.BulkResult{Failed: make(map[domain.VideoID]string)}
	if len(a.Results) > 0 {
		res.PerItem = true
		for _, r := range a.Results {
			if r.Success {
				res.Succeeded = append(res.Succeeded, r.VideoID)
			} else {
				res.Failed[r.VideoID] = r.Error
			}
		}
		return res
	}
	if a.Success {
		res.Succeeded = append(res.Succeeded, ids...)
		return res
	}
	for _, id := range ids {
		res.Failed[id] = a.errorText()
	}
	return res
}

func (a *ackResponse) errorText() string {
	if a.Error != "" {
		return a.Error
	}
	if a.Message != "" {
		return a.Message
	}
	return "request rejected"
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return domain.ParseError(err)
	}
	return nil
}

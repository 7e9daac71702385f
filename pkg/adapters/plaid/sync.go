package plaid

import (
	"context"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// SyncResult is one page of incremental transaction updates.
type SyncResult struct {
	Added      []domain.RawTransaction
	Modified   []domain.RawTransaction
	RemovedIDs []string
	NextCursor string
	HasMore    bool
}

// SyncTransactions fetches one page of the incremental sync stream. Pass
// an empty cursor for the initial full sync, then the returned NextCursor.
func (c *Client) SyncTransactions(ctx context.Context, auth domain.AuthContext, cursor string) (*SyncResult, error) {
	body := map[string]any{"access_token": auth.AccessToken}
	if cursor != "" {
		body["cursor"] = cursor
	}

	var resp struct {
		Added    []domain.RawTransaction `json:"added"`
		Modified []domain.RawTransaction `json:"modified"`
		Removed  []struct {
			TransactionID string `json:"transaction_id"`
		} `json:"removed"`
		NextCursor string `json:"next_cursor"`
		HasMore    bool   `json:"has_more"`
	}
	if err := c.post(ctx, "/transactions/sync", body, &resp); err != nil {
		return nil, err
	}

	res := &SyncResult{
		Added:      resp.Added,
		Modified:   resp.Modified,
		NextCursor: resp.NextCursor,
		HasMore:    resp.HasMore,
	}
	for _, r := range resp.Removed {
		res.RemovedIDs = append(res.RemovedIDs, r.TransactionID)
	}
	return res, nil
}

// SyncAll drains the sync stream from cursor to its end, returning the
// concatenated updates and the final cursor to persist.
func (c *Client) SyncAll(ctx context.Context, auth domain.AuthContext, cursor string) (*SyncResult, error) {
	total := &SyncResult{NextCursor: cursor}
	for {
		page, err := c.SyncTransactions(ctx, auth, total.NextCursor)
		if err != nil {
			return nil, err
		}
		total.Added = append(total.Added, page.Added...)
		total.Modified = append(total.Modified, page.Modified...)
		total.RemovedIDs = append(total.RemovedIDs, page.RemovedIDs...)
		total.NextCursor = page.NextCursor
		if !page.HasMore {
			total.HasMore = false
			return total, nil
		}
	}
}

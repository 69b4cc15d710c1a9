package beets

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Stat is one row of the top listing.
type Stat struct {
	ID         int64      `json:"id"`
	Path       string     `json:"path"`
	PlayCount  int64      `json:"playCount"`
	SkipCount  int64      `json:"skipCount"`
	Rating     float64    `json:"rating"`
	LastPlayed *time.Time `json:"lastPlayed,omitempty"`
}

// Orders accepted by Top.
var Orders = []string{KeyRating, KeyPlayCount, KeySkipCount, KeyLastPlayed}

// Top lists items that carry statistics, highest first by order.
func (c *Catalog) Top(ctx context.Context, order string, limit int) ([]Stat, error) {
	if !validOrder(order) {
		return nil, fmt.Errorf("unknown order %q", order)
	}
	if limit <= 0 {
		limit = 20
	}

	// order is whitelisted above.
	query := `
SELECT i.id, i.path,
  MAX(CASE WHEN a.key = 'play_count' THEN a.value END),
  MAX(CASE WHEN a.key = 'skip_count' THEN a.value END),
  MAX(CASE WHEN a.key = 'rating' THEN a.value END),
  MAX(CASE WHEN a.key = 'last_played' THEN a.value END),
  MAX(CASE WHEN a.key = '` + order + `' THEN CAST(a.value AS REAL) END) AS sort_key
FROM items i
JOIN item_attributes a ON a.entity_id = i.id
WHERE a.key IN ('play_count', 'skip_count', 'rating', 'last_played')
GROUP BY i.id, i.path
ORDER BY sort_key IS NULL, sort_key DESC, i.id
LIMIT ?`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query top: %w", err)
	}
	defer rows.Close()

	out := []Stat{}
	for rows.Next() {
		var id int64
		var path []byte
		var plays, skips, rating, last sql.NullString
		var sortKey sql.NullFloat64
		if err := rows.Scan(&id, &path, &plays, &skips, &rating, &last, &sortKey); err != nil {
			return nil, fmt.Errorf("scan top: %w", err)
		}
		item := &Item{id: id, path: string(path), attrs: map[string]string{}}
		for key, value := range map[string]sql.NullString{
			KeyPlayCount:  plays,
			KeySkipCount:  skips,
			KeyRating:     rating,
			KeyLastPlayed: last,
		} {
			if value.Valid {
				item.attrs[key] = value.String
			}
		}
		stat := Stat{
			ID:        id,
			Path:      item.Path(),
			PlayCount: item.PlayCount(),
			SkipCount: item.SkipCount(),
			Rating:    item.Rating(),
		}
		if when, ok := item.LastPlayed(); ok {
			stat.LastPlayed = &when
		}
		out = append(out, stat)
	}
	return out, rows.Err()
}

func validOrder(order string) bool {
	for _, candidate := range Orders {
		if candidate == order {
			return true
		}
	}
	return false
}

package service

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"gamehub_backend/internal/model"
	"gamehub_backend/internal/repository"
	"gamehub_backend/internal/util"
	"time"
)

// catalogCursor 游标内容：排序键 + 最后一条记录的排序值与 ID
type catalogCursor struct {
	Sort SortKey    `json:"s"`
	Time *time.Time `json:"t,omitempty"`
	Num  *float64   `json:"n,omitempty"`
	ID   string     `json:"id"`
}

func encodeCursor(sort SortKey, order repository.OrderBy, g *model.Game) string {
	cur := catalogCursor{Sort: sort, ID: g.ID}
	switch v := repository.OrderValue(g, order.Field).(type) {
	case time.Time:
		t := v.UTC()
		cur.Time = &t
	case float64:
		cur.Num = &v
	}
	raw, _ := json.Marshal(cur)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(token string, sort SortKey) (*repository.CursorPosition, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", util.ErrInvalidFilterSpec)
	}
	var cur catalogCursor
	if err := json.Unmarshal(raw, &cur); err != nil || cur.ID == "" {
		return nil, fmt.Errorf("%w: malformed cursor", util.ErrInvalidFilterSpec)
	}
	if cur.Sort != sort {
		return nil, fmt.Errorf("%w: cursor was issued for sort %q", util.ErrInvalidFilterSpec, cur.Sort)
	}

	pos := &repository.CursorPosition{ID: cur.ID}
	wantTime := sortOrders[sort].Field == repository.FieldCreatedAt
	switch {
	case wantTime && cur.Time != nil:
		pos.Value = cur.Time.Local()
	case !wantTime && cur.Num != nil:
		pos.Value = *cur.Num
	default:
		return nil, fmt.Errorf("%w: cursor value does not match sort", util.ErrInvalidFilterSpec)
	}
	return pos, nil
}

package repository

import (
	"gamehub_backend/internal/model"
	"time"
)

type QueryOp string

const (
	OpEq            QueryOp = "eq"
	OpArrayContains QueryOp = "array_contains"
)

// 目录查询可用的逻辑字段
const (
	FieldStatus        = "status"
	FieldGenre         = "genre"
	FieldIsFree        = "isFree"
	FieldPlatforms     = "platforms"
	FieldTags          = "tags"
	FieldCreatedAt     = "createdAt"
	FieldDownloadCount = "downloadCount"
	FieldRating        = "rating"
	FieldPrice         = "price"
	FieldDeveloperID   = "developerId"
)

var gameColumns = map[string]string{
	FieldStatus:        "status",
	FieldGenre:         "genre",
	FieldIsFree:        "is_free",
	FieldPlatforms:     "platforms",
	FieldTags:          "tags",
	FieldCreatedAt:     "created_at",
	FieldDownloadCount: "download_count",
	FieldRating:        "rating",
	FieldPrice:         "price",
	FieldDeveloperID:   "developer_id",
}

type Predicate struct {
	Field string
	Op    QueryOp
	Value any
}

type OrderBy struct {
	Field string
	Desc  bool
}

// CursorPosition 上一页最后一条记录的排序值与 ID
type CursorPosition struct {
	Value any
	ID    string
}

// CatalogQuery 下推到存储层的声明式查询：谓词 AND 组合，单字段排序，ID 作为次序键
type CatalogQuery struct {
	Predicates []Predicate
	Order      OrderBy
	After      *CursorPosition
	Limit      int
}

// StoreCapabilities ArrayContainsLimit 为单次查询可用的数组包含谓词数量，0 表示不限
type StoreCapabilities struct {
	ArrayContainsLimit int
}

func (q CatalogQuery) ArrayContainsCount() int {
	n := 0
	for _, p := range q.Predicates {
		if p.Op == OpArrayContains {
			n++
		}
	}
	return n
}

// OrderValue 返回记录在排序字段上的取值：createdAt 为 time.Time，其余为 float64
func OrderValue(g *model.Game, field string) any {
	switch field {
	case FieldCreatedAt:
		return g.CreatedAt
	case FieldDownloadCount:
		return float64(g.DownloadCount)
	case FieldRating:
		return g.Rating
	case FieldPrice:
		return g.Price
	}
	return nil
}

// CompareOrderValues a<b 返回 -1，相等返回 0，否则返回 1；类型不一致视为相等
func CompareOrderValues(a, b any) int {
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0
		}
		return av.Compare(bv)
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
	}
	return 0
}

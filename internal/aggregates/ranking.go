package aggregates

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/omeyang/aggsync/pkg/storage/xcachesync"
)

// RankedClient 排行榜中的一个客户。
type RankedClient struct {
	ClienteID      string  `json:"cliente_id"`
	ClienteNombre  string  `json:"cliente_nombre"`
	TotalCobertura float64 `json:"total_cobertura"`
}

// Ranker 执行返回原始文档的聚合，*xmongo.Aggregator 实现此接口。
type Ranker interface {
	RankedAggregate(ctx context.Context, q xcachesync.Query) ([]bson.M, error)
}

// RankingFunc 返回计算 top_clients 的函数，结果为空时返回空切片而非 nil。
func RankingFunc(ranker Ranker, q xcachesync.Query) xcachesync.ComputeFunc[[]RankedClient] {
	return func(ctx context.Context) ([]RankedClient, error) {
		docs, err := ranker.RankedAggregate(ctx, q)
		if err != nil {
			return nil, err
		}
		out := make([]RankedClient, 0, len(docs))
		for _, doc := range docs {
			c, err := decodeRankedClient(doc)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	}
}

func decodeRankedClient(doc bson.M) (RankedClient, error) {
	c := RankedClient{}
	switch id := doc["_id"].(type) {
	case string:
		c.ClienteID = id
	case nil:
	default:
		c.ClienteID = fmt.Sprint(id)
	}
	if name, ok := doc["cliente_nombre"].(string); ok {
		c.ClienteNombre = name
	}
	switch v := doc["total_cobertura"].(type) {
	case float64:
		c.TotalCobertura = v
	case int32:
		c.TotalCobertura = float64(v)
	case int64:
		c.TotalCobertura = float64(v)
	case nil:
	default:
		return RankedClient{}, fmt.Errorf("aggregates: total_cobertura has type %T", v)
	}
	return c, nil
}

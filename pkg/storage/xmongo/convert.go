package xmongo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// lookup 按 "a.b" 路径读取字段，中间层可以是 bson.M 或 bson.D。
func lookup(doc bson.M, path string) (any, bool) {
	var cur any = doc
	for part := range strings.SplitSeq(path, ".") {
		switch d := cur.(type) {
		case bson.M:
			v, ok := d[part]
			if !ok {
				return nil, false
			}
			cur = v
		case bson.D:
			found := false
			for _, e := range d {
				if e.Key == part {
					cur, found = e.Value, true
					break
				}
			}
			if !found {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return cur, true
}

func stringifyID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case bson.ObjectID:
		return id.Hex()
	case int32:
		return strconv.FormatInt(int64(id), 10)
	case int64:
		return strconv.FormatInt(id, 10)
	case int:
		return strconv.Itoa(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(id)
	default:
		return fmt.Sprint(id)
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidTotal, n)
		}
		return int64(math.Round(n)), nil
	case bson.Decimal128:
		f, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidTotal, n.String())
		}
		return toInt64(f)
	default:
		return 0, fmt.Errorf("%w: %T", ErrInvalidTotal, v)
	}
}

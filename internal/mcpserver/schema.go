package mcpserver

import "fmt"

const defaultPageLimit = 50

func clampPagination(limit, offset, maxLimit int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// stringParams flattens a JSON object argument into action params.
func stringParams(v any) map[string]string {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, val := range obj {
		switch x := val.(type) {
		case string:
			out[k] = x
		case float64:
			if x == float64(int64(x)) {
				out[k] = fmt.Sprintf("%d", int64(x))
			} else {
				out[k] = fmt.Sprintf("%g", x)
			}
		case nil:
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}

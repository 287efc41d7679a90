package models

// Flatten collapses nested objects into a single level, joining keys with
// sep: {"metrics": {"clicks": 1}} becomes {"metrics.clicks": 1} for sep ".".
// Arrays are left as values.
func Flatten(m map[string]interface{}, sep string) Row {
	out := make(Row, len(m))
	flatten(out, "", m, sep)
	return out
}

func flatten(out Row, prefix string, m map[string]interface{}, sep string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + sep + k
		}
		if nested, ok := v.(map[string]interface{}); ok && len(nested) > 0 {
			flatten(out, key, nested, sep)
			continue
		}
		out[key] = v
	}
}

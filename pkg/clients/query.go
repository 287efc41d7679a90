package clients

import (
	"net/url"
	"sort"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/json"
)

// EncodeQuery converts params to url.Values. Strings are passed as is,
// []string values become repeated keys when repeat is true, and everything
// else is JSON encoded (so a []string becomes ["a","b"]). This is the
// convention of the Graph and TikTok marketing APIs.
func EncodeQuery(params map[string]interface{}, repeat bool) (url.Values, error) {
	values := url.Values{}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := params[k].(type) {
		case nil:
			continue
		case string:
			values.Set(k, v)
		case []string:
			if repeat {
				for _, s := range v {
					values.Add(k, s)
				}
				continue
			}
			data, err := json.Marshal(v)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrorTypeValidation, "failed to encode query parameter %q", k)
			}
			values.Set(k, string(data))
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrorTypeValidation, "failed to encode query parameter %q", k)
			}
			values.Set(k, string(data))
		}
	}
	return values, nil
}

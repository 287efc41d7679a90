package s3

import (
	"path/filepath"

	"github.com/route1io/connectors/pkg/errors"
)

// Pair maps an object key to a local file.
type Pair struct {
	Key      string
	Filename string
}

// side selects which of filenames and keys must be fully specified.
type side int

const (
	filenamesRequired side = iota
	keysRequired
)

// pairFiles pairs local filenames with object keys.
//
// The required side must be non-empty and may not contain empty entries.
// When both sides are non-empty they must have the same length. An empty
// optional side defaults to the base name of every required entry; an
// empty optional entry defaults to its partner's full value. Later pairs
// replace earlier ones with the same key.
func pairFiles(filenames, keys []string, required side) ([]Pair, error) {
	if len(filenames) > 0 && len(keys) > 0 && len(filenames) != len(keys) {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"filenames (%d) and keys (%d) must have the same length", len(filenames), len(keys))
	}

	full, partial, name := filenames, keys, "filename"
	if required == keysRequired {
		full, partial, name = keys, filenames, "key"
	}
	if len(full) == 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "at least one %s is required", name)
	}
	for i, v := range full {
		if v == "" {
			return nil, errors.Newf(errors.ErrorTypeValidation, "%s %d is empty", name, i)
		}
	}

	filled := make([]string, len(full))
	for i, v := range full {
		switch {
		case len(partial) == 0:
			filled[i] = filepath.Base(v)
		case partial[i] == "":
			filled[i] = v
		default:
			filled[i] = partial[i]
		}
	}

	pairs := make([]Pair, 0, len(full))
	index := make(map[string]int, len(full))
	for i := range full {
		p := Pair{Filename: full[i], Key: filled[i]}
		if required == keysRequired {
			p = Pair{Key: full[i], Filename: filled[i]}
		}
		if j, ok := index[p.Key]; ok {
			pairs[j] = p
			continue
		}
		index[p.Key] = len(pairs)
		pairs = append(pairs, p)
	}
	return pairs, nil
}

package components

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// toGJSONPath translates the json-body-modify path grammar
// ("seg(.seg|[idx])*", e.g. "user.name", "items[0].price") into the
// dot-and-bare-index path syntax gjson/sjson expect natively, so the
// component layer never hand-rolls a JSON walker.
func toGJSONPath(path string) string {
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch c {
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				b.WriteByte(c)
				continue
			}
			idx := path[i+1 : i+end]
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(idx)
			i += end
		case '.':
			if b.Len() > 0 {
				b.WriteByte('.')
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// applyJSONPathOp implements the set/remove/append semantics of the JSON
// path grammar: set creates missing intermediate objects; append coerces a
// scalar to a list when appending; remove splices arrays and deletes
// object keys.
func applyJSONPathOp(body, path, op, valueJSON string) (string, error) {
	gpath := toGJSONPath(path)
	switch op {
	case "remove":
		return sjson.Delete(body, gpath)
	case "append":
		existing := gjson.Get(body, gpath)
		switch {
		case !existing.Exists():
			return sjson.SetRawOptions(body, gpath, "["+valueJSON+"]", &sjson.Options{Optimistic: true})
		case existing.IsArray():
			n := len(existing.Array())
			return sjson.SetRawOptions(body, gpath+"."+strconv.Itoa(n), valueJSON, &sjson.Options{Optimistic: true})
		default:
			// Coerce the existing scalar into a two-element list.
			listJSON := "[" + existing.Raw + "," + valueJSON + "]"
			return sjson.SetRawOptions(body, gpath, listJSON, &sjson.Options{Optimistic: true})
		}
	default: // "set"
		return sjson.SetRawOptions(body, gpath, valueJSON, &sjson.Options{Optimistic: true})
	}
}

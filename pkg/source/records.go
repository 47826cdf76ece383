package source

import (
	"strconv"
	"strings"

	"github.com/matzehuels/optisource/pkg/sink"
)

// Flatten turns the expanded payload of one endpoint into records: one per
// content object, with nested arrays flattened in order. Scalars are
// skipped.
//
// A record is keyed by node name and lower-cased contentLink.url, or by
// its position in the payload when the item has no URL.
func Flatten(nodeName, endpoint string, data any) []sink.Record {
	var out []sink.Record
	var visit func(v any)
	visit = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, el := range t {
				visit(el)
			}
		case map[string]any:
			url := contentURL(t)
			key := nodeName + ":" + url
			if url == "" {
				key = nodeName + ":" + endpoint + "#" + strconv.Itoa(len(out))
			}
			out = append(out, sink.Record{
				Key:      key,
				NodeName: nodeName,
				Endpoint: endpoint,
				URL:      url,
				Data:     t,
			})
		}
	}
	visit(data)
	return out
}

// Records flattens every fulfilled result of r.
func (r *Result) Records() []sink.Record {
	var out []sink.Record
	for _, fr := range r.Results {
		if fr.OK() {
			out = append(out, Flatten(fr.NodeName, fr.Endpoint, fr.Data)...)
		}
	}
	return out
}

func contentURL(m map[string]any) string {
	link, _ := m["contentLink"].(map[string]any)
	url, _ := link["url"].(string)
	return strings.ToLower(url)
}

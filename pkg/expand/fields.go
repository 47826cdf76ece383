package expand

import "sort"

// Kind describes how a known field holds content links.
type Kind int

const (
	// Single is one link stub merged in place, like an image reference.
	Single Kind = iota
	// ArrayOfLinks is a list of link stubs, each merged in place.
	ArrayOfLinks
	// ArrayOfItems is a list of content blocks whose resolved content
	// lives under contentLink.expanded.
	ArrayOfItems
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "single"
	case ArrayOfLinks:
		return "array_of_links"
	case ArrayOfItems:
		return "array_of_items"
	default:
		return "unknown"
	}
}

// Field is one entry of the field table.
type Field struct {
	Name string
	Kind Kind
}

var fields = map[string]Kind{
	"contentBlocks":       ArrayOfItems,
	"contentBlocksTop":    ArrayOfItems,
	"contentBlocksBottom": ArrayOfItems,

	"dynamicStyles": ArrayOfLinks,
	"items":         ArrayOfLinks,
	"images":        ArrayOfLinks,
	"productImages": ArrayOfLinks,
	"form":          ArrayOfLinks,

	"image":           Single,
	"headerImage":     Single,
	"backgroundImage": Single,
	"thumbnailImage":  Single,
	"mobileImage":     Single,
	"logo":            Single,
	"icon":            Single,
}

// Lookup returns the kind of a known field.
func Lookup(name string) (Kind, bool) {
	k, ok := fields[name]
	return k, ok
}

// Fields returns the field table sorted by name.
func Fields() []Field {
	out := make([]Field, 0, len(fields))
	for name, kind := range fields {
		out = append(out, Field{Name: name, Kind: kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// stubKeys are the keys a content area entry carries before it is resolved.
var stubKeys = map[string]bool{
	"contentLink":   true,
	"id":            true,
	"displayOption": true,
	"tag":           true,
}

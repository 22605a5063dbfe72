package canon

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/nowhere/internal/ir"
)

// contentSeparator joins content fields before hashing so that
// ("ab", "c") and ("a", "bc") never collide.
const contentSeparator = "\x1f"

// Projector extracts the derivation-relevant digest from a raw payload.
// Implementations must be pure: the same payload always yields the same
// digest.
type Projector interface {
	Project(p ir.RawPayload) (ir.ResponseDigest, error)
}

// ProjectorFunc adapts a function to the Projector interface.
type ProjectorFunc func(p ir.RawPayload) (ir.ResponseDigest, error)

// Project implements Projector.
func (f ProjectorFunc) Project(p ir.RawPayload) (ir.ResponseDigest, error) {
	return f(p)
}

// ItemsProjector projects a JSON body holding a list of result items.
//
// For each item the first present IDFields entry becomes the identifier, the
// ContentFields are joined into the content hash, and CategoryField (or
// DefaultCategory) becomes the category tag. Rank is the item's position among
// items that carry an identifier. Identifiers may be strings or integers;
// they keep their case, since URL paths and ids are case-sensitive. Content
// and category go through Text, so whitespace, key order and capitalization
// never affect them.
type ItemsProjector struct {
	ItemsPath       []string `yaml:"items_path"`
	IDFields        []string `yaml:"id_fields"`
	ContentFields   []string `yaml:"content_fields"`
	CategoryField   string   `yaml:"category_field"`
	DefaultCategory string   `yaml:"default_category"`
}

// SearchResults is the preset for web-search style responses
// ({"web": {"results": [{"url", "title", "description", "type"}]}}).
func SearchResults() ItemsProjector {
	return ItemsProjector{
		ItemsPath:       []string{"web", "results"},
		IDFields:        []string{"url"},
		ContentFields:   []string{"title", "description"},
		CategoryField:   "type",
		DefaultCategory: "web",
	}
}

// GenericItems is the preset for {"items": [...]} responses.
func GenericItems() ItemsProjector {
	return ItemsProjector{
		ItemsPath:       []string{"items"},
		IDFields:        []string{"id", "url"},
		ContentFields:   []string{"title", "description", "text"},
		CategoryField:   "category",
		DefaultCategory: "item",
	}
}

// Project implements Projector.
func (p ItemsProjector) Project(payload ir.RawPayload) (ir.ResponseDigest, error) {
	digest := ir.ResponseDigest{Status: int64(payload.Status), Items: []ir.DigestItem{}}
	if len(payload.Body) == 0 {
		return digest, nil
	}

	body, err := ParseBody(payload.Body)
	if err != nil {
		return ir.ResponseDigest{}, err
	}

	list, found, err := p.items(body)
	if err != nil || !found {
		return digest, err
	}

	for i, raw := range list {
		item, ok := raw.(ir.IRObject)
		if !ok {
			return ir.ResponseDigest{}, malformed(fmt.Sprintf("items[%d]", i), "item is not an object", nil)
		}
		id, ok, err := p.identifier(item)
		if err != nil {
			return ir.ResponseDigest{}, malformed(fmt.Sprintf("items[%d]", i), "unsupported identifier", err)
		}
		if !ok {
			continue
		}
		content, err := p.content(item)
		if err != nil {
			return ir.ResponseDigest{}, malformed(fmt.Sprintf("items[%d]", i), "cannot encode content", err)
		}
		digest.Items = append(digest.Items, ir.DigestItem{
			IDHash:      ir.TextHash(id),
			ContentHash: ir.TextHash(content),
			Rank:        int64(len(digest.Items)),
			Category:    p.category(item),
		})
	}
	return digest, nil
}

// items walks ItemsPath. A missing path means "no results"; a path that
// resolves to something other than a list is malformed.
func (p ItemsProjector) items(body ir.IRValue) (ir.IRArray, bool, error) {
	cur := body
	for _, seg := range p.ItemsPath {
		obj, ok := cur.(ir.IRObject)
		if !ok {
			return nil, false, malformed(strings.Join(p.ItemsPath, "."), "path crosses a non-object", nil)
		}
		next, ok := obj[seg]
		if !ok {
			return nil, false, nil
		}
		cur = next
	}
	list, ok := cur.(ir.IRArray)
	if !ok {
		return nil, false, malformed(strings.Join(p.ItemsPath, "."), "not a list", nil)
	}
	return list, true, nil
}

// identifier returns the first non-empty IDFields entry. An id field of any
// other type is an error rather than a skipped item.
func (p ItemsProjector) identifier(item ir.IRObject) (string, bool, error) {
	for _, f := range p.IDFields {
		switch v := item[f].(type) {
		case nil:
		case ir.IRString:
			if id := collapse(string(v)); id != "" {
				return id, true, nil
			}
		case ir.IRInt:
			return strconv.FormatInt(int64(v), 10), true, nil
		default:
			return "", false, fmt.Errorf("field %q has type %T", f, v)
		}
	}
	return "", false, nil
}

func (p ItemsProjector) content(item ir.IRObject) (string, error) {
	parts := make([]string, len(p.ContentFields))
	for i, f := range p.ContentFields {
		switch v := item[f].(type) {
		case nil:
		case ir.IRString:
			parts[i] = Text(string(v))
		default:
			data, err := ir.MarshalCanonical(v)
			if err != nil {
				return "", err
			}
			parts[i] = string(data)
		}
	}
	return strings.Join(parts, contentSeparator), nil
}

func (p ItemsProjector) category(item ir.IRObject) string {
	if p.CategoryField != "" {
		if s, ok := item[p.CategoryField].(ir.IRString); ok {
			if c := Text(string(s)); c != "" {
				return c
			}
		}
	}
	return Text(p.DefaultCategory)
}

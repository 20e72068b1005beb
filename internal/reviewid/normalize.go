// Package reviewid maps review records to canonical upstream review identifiers.
//
// The upstream bakery-review list does not reliably carry an identifier, and the
// field that does carry it varies between endpoints. Resolution first checks the
// record for a direct identifier and then falls back to a heuristic join against
// the caller's own review index (see IdentityMap). The join key is
// (bakery, text, date) and is not unique: two reviews with the same bakery, exact
// text and date collide, and the later one in the index wins.
package reviewid

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is a decoded JSON object as returned by the upstream API.
type Record = map[string]any

// ReviewIDKeys are the field names that may carry a review identifier on a
// review record, tried in order.
var ReviewIDKeys = []string{
	"reviewId",
	"ReviewId",
	"reviewID",
	"ReviewID",
	"review_id",
	"bakeryReviewId",
	"BakeryReviewId",
	"bakeryReviewID",
	"BakeryReviewID",
	"bakery_review_id",
}

// IndexIDKeys are read from items of the member review index. Unlike review
// list items, index items may carry their identifier under a bare "id".
var IndexIDKeys = []string{"reviewId", "bakeryReviewId", "review_id", "id"}

var (
	bakeryKeys = []string{"bakeryId", "bakery_id", "bakery.id"}
	textKeys   = []string{"text", "content"}
	dateKeys   = []string{"date", "createdAt"}
)

// NormalizeID returns v as a trimmed, non-empty identifier string.
// nil, blank strings and composite values yield false.
func NormalizeID(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s, ok := scalarString(v)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

// DirectID returns the first normalized identifier found under ReviewIDKeys.
func DirectID(r Record) (string, bool) {
	return firstID(r, ReviewIDKeys)
}

func firstID(r Record, keys []string) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, k := range keys {
		if id, ok := NormalizeID(r[k]); ok {
			return id, true
		}
	}
	return "", false
}

// trimString renders v as trimmed text; nil becomes "".
func trimString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := scalarString(v); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return numberString(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

// numberString keeps integer literals verbatim, whatever their size, and
// renders other numbers the way float64 values are rendered.
func numberString(n json.Number) string {
	lit := n.String()
	if !strings.ContainsAny(lit, ".eE") {
		return lit
	}
	if f, err := n.Float64(); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return lit
}

// lookup resolves a dot path on nested objects.
func lookup(r Record, path string) any {
	cur := any(r)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// firstPresent returns the first non-nil value among paths. A present but
// empty value still wins over later paths.
func firstPresent(r Record, paths ...string) any {
	for _, p := range paths {
		if v := lookup(r, p); v != nil {
			return v
		}
	}
	return nil
}

package app

import (
	"encoding/json"
	"strconv"
	"strings"

	"breadcast/internal/domain"
	"breadcast/internal/reviewid"
)

/********** alias registries (single source of truth) **********/

var reviewAliases = map[string][]string{
	"text":   {"content", "text"},
	"photo":  {"photo", "photoUrl", "imageUrl"},
	"date":   {"date", "createdAt"},
	"writer": {"userName", "writer", "nickname", "member.nickname"},
	"rating": {"rating", "score"},
}

var bakeryAliases = map[string][]string{
	"id":      {"bakeryId", "bakery_id", "id"},
	"name":    {"name", "bakeryName"},
	"address": {"address", "roadAddress", "location.address"},
	"phone":   {"phone", "tel", "phoneNumber"},
	"url":     {"URL", "url", "website"},
}

var menuAliases = map[string][]string{
	"name":  {"name", "menuName"},
	"photo": {"photo", "image", "imageUrl"},
}

var memberAliases = map[string][]string{
	"login":    {"loginId", "username", "userName"},
	"nickname": {"nickname", "name"},
}

var courseAliases = map[string][]string{
	"id":    {"courseId", "id"},
	"title": {"title", "name"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
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

// firstScalarAlias: first non-blank scalar (string or number) for a named alias set.
func firstScalarAlias(m map[string]any, aliases map[string][]string, key string) string {
	for _, p := range aliases[key] {
		if s, ok := reviewid.NormalizeID(lookupAny(m, p)); ok {
			return s
		}
	}
	return ""
}

func ptrStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// getFloatFlexible: number from several paths (float64/int/json.Number/string like "8,0").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return &f
			}
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// firstSliceStrings: accept []any with either strings or {url/src/name}.
func firstSliceStrings(m map[string]any, paths ...string) []string {
	for _, k := range paths {
		if raw, ok := lookupAny(m, k).([]any); ok {
			out := make([]string, 0, len(raw))
			for _, it := range raw {
				switch t := it.(type) {
				case string:
					if t != "" {
						out = append(out, t)
					}
				case map[string]any:
					for _, f := range []string{"url", "src", "name"} {
						if u, ok := t[f].(string); ok && u != "" {
							out = append(out, u)
							break
						}
					}
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

func objects(m map[string]any, paths ...string) []map[string]any {
	for _, k := range paths {
		if raw, ok := lookupAny(m, k).([]any); ok {
			out := make([]map[string]any, 0, len(raw))
			for _, it := range raw {
				if o, ok := it.(map[string]any); ok {
					out = append(out, o)
				}
			}
			return out
		}
	}
	return nil
}

/********** mappers **********/

func mapReview(r map[string]any) domain.Review {
	return domain.Review{
		Text:   firstScalarAlias(r, reviewAliases, "text"),
		Photo:  ptrStr(firstScalarAlias(r, reviewAliases, "photo")),
		Date:   firstScalarAlias(r, reviewAliases, "date"),
		Rating: getFloatFlexible(r, reviewAliases["rating"]...),
		Writer: firstScalarAlias(r, reviewAliases, "writer"),
		Raw:    r,
	}
}

func mapBakery(p map[string]any) domain.Bakery {
	b := domain.Bakery{
		ID:      firstScalarAlias(p, bakeryAliases, "id"),
		Name:    firstScalarAlias(p, bakeryAliases, "name"),
		Address: firstScalarAlias(p, bakeryAliases, "address"),
		Phone:   firstScalarAlias(p, bakeryAliases, "phone"),
		URL:     firstScalarAlias(p, bakeryAliases, "url"),
		Lat:     getFloatFlexible(p, "latitude", "lat", "location.lat"),
		Lon:     getFloatFlexible(p, "longitude", "lng", "lon", "location.lng"),
		Photos:  firstSliceStrings(p, "photos", "images"),
	}
	// detail payloads carry numbered photo fields instead of a list
	if len(b.Photos) == 0 {
		for _, k := range []string{"photo1", "photo2", "photo"} {
			if s, ok := reviewid.NormalizeID(lookupAny(p, k)); ok {
				b.Photos = append(b.Photos, s)
			}
		}
	}
	if v, ok := p["isFavorited"].(bool); ok {
		b.IsFavorited = &v
	}
	return b
}

func mapMenus(in []map[string]any) []domain.Menu {
	out := make([]domain.Menu, 0, len(in))
	for _, m := range in {
		out = append(out, domain.Menu{
			Name:  firstScalarAlias(m, menuAliases, "name"),
			Price: getFloatFlexible(m, "price", "cost"),
			Photo: firstScalarAlias(m, menuAliases, "photo"),
		})
	}
	return out
}

func mapBakeries(in []map[string]any) []domain.Bakery {
	out := make([]domain.Bakery, 0, len(in))
	for _, m := range in {
		out = append(out, mapBakery(m))
	}
	return out
}

func mapMember(m map[string]any) domain.Member {
	return domain.Member{
		LoginID:  firstScalarAlias(m, memberAliases, "login"),
		Nickname: firstScalarAlias(m, memberAliases, "nickname"),
	}
}

func mapCourses(in []map[string]any) []domain.Course {
	out := make([]domain.Course, 0, len(in))
	for _, c := range in {
		out = append(out, domain.Course{
			ID:       firstScalarAlias(c, courseAliases, "id"),
			Title:    firstScalarAlias(c, courseAliases, "title"),
			Bakeries: mapBakeries(objects(c, "bakeries", "stores", "places")),
		})
	}
	return out
}

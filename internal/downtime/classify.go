// Package downtime holds the pure rules of the stoppage domain: how a raw
// type/category pair is normalised, and how a machine's status follows from
// its open stoppages.
package downtime

import (
	"strings"

	"downtime-backend/internal/model"
)

// Resolve turns a caller supplied (type, category) pair into a consistent one.
//
// A known rawCategory always wins and dictates the type. Otherwise the type is
// rawType when valid, else fallbackType, else OPERATIONAL; the category is then
// fallbackCategory if it belongs to that type's pool, else the pool's first
// entry. Resolve never fails.
func Resolve(rawType, rawCategory string, fallbackType model.StoppageType, fallbackCategory model.StoppageCategory) (model.StoppageType, model.StoppageCategory) {
	category := model.StoppageCategory(normalize(rawCategory))
	if t, ok := category.Type(); ok {
		return t, category
	}

	typ := model.StoppageType(normalize(rawType))
	if !typ.Valid() {
		typ = fallbackType
	}
	if !typ.Valid() {
		typ = model.TypeOperational
	}

	if t, ok := fallbackCategory.Type(); ok && t == typ {
		return typ, fallbackCategory
	}
	return typ, model.CategoriesOf(typ)[0]
}

func normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

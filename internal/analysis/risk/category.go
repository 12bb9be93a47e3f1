package risk

import (
	"fmt"
	"strings"
)

// Category is the closed set of situation tags. Exactly one holds per message.
type Category string

const (
	ImmediateDanger Category = "immediate_danger"
	Grief           Category = "grief"
	Panic           Category = "panic"
	HighDistress    Category = "high_distress"
	Normal          Category = "normal"
)

// Categories lists every category in severity order.
func Categories() []Category {
	return []Category{ImmediateDanger, Grief, Panic, HighDistress, Normal}
}

// ParseCategory accepts the lowercase wire form.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case ImmediateDanger, Grief, Panic, HighDistress, Normal:
		return c, nil
	default:
		return "", fmt.Errorf("unknown situation category %q", raw)
	}
}

// Token is the uppercase form the model is asked to return.
func (c Category) Token() string {
	return strings.ToUpper(string(c))
}

// Crisis reports whether the category requires the crisis resource list.
func (c Category) Crisis() bool {
	return c == ImmediateDanger
}

// ParseModelOutput returns the category whose token appears earliest in the uppercased
// response. Longer tokens win ties at the same offset.
func ParseModelOutput(raw string) (Category, bool) {
	upper := strings.ToUpper(raw)
	best, bestAt := Category(""), -1
	for _, c := range Categories() {
		for _, token := range []string{c.Token(), strings.ReplaceAll(c.Token(), "_", " ")} {
			at := strings.Index(upper, token)
			if at < 0 {
				continue
			}
			if bestAt < 0 || at < bestAt || (at == bestAt && len(c) > len(best)) {
				best, bestAt = c, at
			}
		}
	}
	return best, bestAt >= 0
}

package occlusion

import (
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Category partitions the indexed objects. Each category has its own tree.
type Category uint8

const (
	// Static objects never move. Their tree is usually built once with
	// ConstructStaticTree.
	Static Category = iota
	Dynamic
	Light

	// CategoryCount is the number of categories.
	CategoryCount
)

// Categories lists every valid category.
var Categories = [CategoryCount]Category{Static, Dynamic, Light}

func (c Category) String() string {
	switch c {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	case Light:
		return "light"
	default:
		return "unknown"
	}
}

func (c Category) IsValid() bool {
	return c < CategoryCount
}

// ParseCategory returns the category with the given name. The name is case
// insensitive.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "static":
		return Static, nil
	case "dynamic":
		return Dynamic, nil
	case "light":
		return Light, nil
	default:
		return CategoryCount, errors.New("unknown category").
			WithType(ErrTypeUnknownCategory).
			WithTag("category", s)
	}
}

// Package naming derives output names for work items.
//
// The name doubles as the dedup key: an item whose name already exists in the
// output directory is treated as fetched. Two titles that share the same
// filtered prefix map to the same name and the later one is skipped.
package naming

import (
	"unicode"

	"github.com/dtnitsch/postgrab/internal/common"
	"github.com/dtnitsch/postgrab/models"
)

// DefaultLength is the number of title runes considered by Slug.
const DefaultLength = 20

// Namer maps a work item to the base name of its output artifact.
type Namer interface {
	Name(item *models.WorkItem) string
}

// Slug keeps only letters, digits, '-', '_' and '.' from the first n runes of title.
func Slug(title string, n int) string {
	out := make([]rune, 0, n)
	count := 0
	for _, r := range title {
		if count == n {
			break
		}
		count++
		if keep(r) {
			out = append(out, r)
		}
	}
	return string(out)
}

func keep(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '_' || r == '.'
}

// TitleNamer names items by the slug of their title, falling back to the URL's
// last path segment and finally to a short hash of the URL.
type TitleNamer struct {
	Length int
}

// Name implements Namer.
func (n TitleNamer) Name(item *models.WorkItem) string {
	length := n.Length
	if length <= 0 {
		length = DefaultLength
	}
	if slug := safe(Slug(item.Title, length)); slug != "" {
		return slug
	}
	if slug := safe(Slug(common.LastPathSegment(item.URL), length)); slug != "" {
		return slug
	}
	return common.ShortHash(item.URL)
}

// HashNamer names items by a short hash of their URL. It never collides for
// distinct URLs but loses the human-readable name.
type HashNamer struct{}

// Name implements Namer.
func (HashNamer) Name(item *models.WorkItem) string {
	return common.ShortHash(item.URL)
}

// safe rejects names made only of dots, which would resolve to the directory itself.
func safe(slug string) string {
	for _, r := range slug {
		if r != '.' {
			return slug
		}
	}
	return ""
}

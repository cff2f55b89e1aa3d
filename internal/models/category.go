package models

import (
	"errors"
	"fmt"
)

// Category is a fixed topic domain that scopes both a chat conversation and the external API routes used
// for it. The set is closed: values are only ever the constants declared below, and CategoryCount can be
// used to size lookup tables indexed by Category.
type Category uint8

const (
	// Elma is apple growing.
	Elma Category = iota
	// Cay is tea production.
	Cay
	// Findik is hazelnut farming.
	Findik

	// CategoryCount is the number of known categories.
	CategoryCount = int(iota)
)

// DefaultCategory is used whenever the requested category is missing or not recognized.
const DefaultCategory = Elma

// ErrUnknownCategory is returned when a Category value outside the closed set reaches a lookup. It signals a
// programming or configuration error rather than bad user input.
var ErrUnknownCategory = errors.New("unknown category")

// CategoryInfo holds the display metadata of a category.
type CategoryInfo struct {
	Category    Category
	ID          string
	Name        string
	Icon        string
	Description string
}

var registry = [CategoryCount]CategoryInfo{
	Elma:   {Category: Elma, ID: "elma", Name: "Elma", Icon: "🍎", Description: "Elma yetiştiriciliği"},
	Cay:    {Category: Cay, ID: "cay", Name: "Çay", Icon: "🍃", Description: "Çay üretimi"},
	Findik: {Category: Findik, ID: "findik", Name: "Fındık", Icon: "🌰", Description: "Fındık tarımı"},
}

// Categories returns the registry in display order. The returned slice is a copy and can be modified freely.
func Categories() []CategoryInfo {
	out := make([]CategoryInfo, CategoryCount)
	copy(out, registry[:])
	return out
}

// ParseCategory looks up a category by its identifier.
func ParseCategory(id string) (Category, bool) {
	for _, info := range registry {
		if info.ID == id {
			return info.Category, true
		}
	}
	return 0, false
}

// ResolveCategory maps a navigation query value to a category, falling back to DefaultCategory for missing
// or unrecognized values.
func ResolveCategory(id string) Category {
	if c, ok := ParseCategory(id); ok {
		return c
	}
	return DefaultCategory
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	return int(c) < CategoryCount
}

// Info returns the display metadata of c. It panics if c is not a declared category.
func (c Category) Info() CategoryInfo {
	return registry[c]
}

// ID returns the identifier used in URLs and Q&A routes.
func (c Category) ID() string {
	if !c.Valid() {
		return ""
	}
	return registry[c].ID
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
	return registry[c].ID
}

// ModelName returns the name of the image classification model serving c.
func (c Category) ModelName() (string, error) {
	switch c {
	case Elma:
		return "apple", nil
	case Cay:
		return "tea", nil
	case Findik:
		return "hazelnut", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCategory, c)
}

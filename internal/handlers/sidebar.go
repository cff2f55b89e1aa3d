package handlers

import (
	"net/url"

	"github.com/tarimai/tarim-web/internal/models"
)

type categoryLink struct {
	models.CategoryInfo

	Active bool
	URL    string
}

// sidebar lists every category with a link that navigates to it. Selecting a category is a navigation
// request; the shell derives the active category from the resulting location.
func sidebar(active models.Category) []categoryLink {
	cats := models.Categories()
	links := make([]categoryLink, len(cats))
	for i, info := range cats {
		q := url.Values{}
		q.Set(categoryQueryParam, info.ID)
		links[i] = categoryLink{
			CategoryInfo: info,
			Active:       info.Category == active,
			URL:          "/?" + q.Encode(),
		}
	}
	return links
}

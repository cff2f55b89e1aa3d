package models

import (
	"encoding/base64"
	"html/template"
)

// Image is a photo selected for classification, held in memory until it is analyzed or discarded.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// PreviewURL returns a data URL the browser can render without fetching the image again.
func (i Image) PreviewURL() template.URL {
	// Content type comes from http.DetectContentType, so it is always a well-formed media type.
	return template.URL("data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data))
}

// Package media is the boundary to image storage: a send with an image
// hands the bytes over and gets back a URL to embed in the message.
package media

import "errors"

var ErrUnsupportedType = errors.New("unsupported media type")

// Store saves uploaded image bytes and serves them back by ID.
type Store interface {
	// Save stores the image and returns the URL clients fetch it from.
	Save(data []byte) (url string, err error)

	// Get returns the image bytes and MIME type for the given ID.
	Get(id string) (data []byte, mimeType string, err error)
}

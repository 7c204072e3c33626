package app

import (
	"log"
	"mime"
)

// Upload content types fall back to the file extension; make sure the common image formats resolve.
func init() {
	ensureMimeType(".webp", "image/webp")
	ensureMimeType(".avif", "image/avif")
	ensureMimeType(".heic", "image/heic")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: failed to register MIME type for %s: %v", ext, err)
	}
}

package orchestrator

import "regexp"

// imagePattern matches render intents in English and Bengali. It is a
// substring match, so "drawer" counts too.
var imagePattern = regexp.MustCompile(`(?i)generate image|create image|draw|make a picture|imagine|chobi|ছবি|paint|photo of|render`)

// IsImageRequest reports whether query asks for an image.
func IsImageRequest(query string) bool {
	return imagePattern.MatchString(query)
}

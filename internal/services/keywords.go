// Package services – image-request classification and caption fallback.
//
// Comments asking the persona to draw or generate something are routed to
// image generation instead of a text reply. Classification is a deliberate
// non-ML substring match against a fixed multilingual keyword set so the
// decision is cheap, deterministic, and testable.
package services

import (
	"strings"
	"unicode/utf8"
)

// imageKeywords are matched case-insensitively as substrings of the comment.
var imageKeywords = []string{
	"사진", "이미지", "그림", "그려줘", "만들어줘",
	"image", "picture", "photo", "render", "generate",
}

// imageLiterals are additional Korean trigger words checked verbatim.
var imageLiterals = []string{"만들어줘", "그려줘", "렌더링"}

const (
	// defaultImageCaption replaces captions that merely echo an image request.
	defaultImageCaption = "오늘의 한 장"
	// captionMaxRunes bounds captions built from comment text.
	captionMaxRunes = 80
)

// LooksLikeImageRequest reports whether text reads as a request to generate
// an image.
func LooksLikeImageRequest(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	for _, kw := range imageKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	for _, lit := range imageLiterals {
		if strings.Contains(t, lit) {
			return true
		}
	}
	return false
}

// FallbackCaption derives a deterministic caption from the source comment
// when AI caption generation fails or is unavailable. Image-request text is
// discarded (it would read like an instruction, not a caption); other text
// is used as-is up to captionMaxRunes, truncated with an ellipsis beyond
// that; blank input yields the fixed default.
func FallbackCaption(text string) string {
	t := strings.TrimSpace(text)
	if t == "" || LooksLikeImageRequest(t) {
		return defaultImageCaption
	}
	if utf8.RuneCountInString(t) > captionMaxRunes {
		return string([]rune(t)[:captionMaxRunes]) + "…"
	}
	return t
}

package model

import (
	"image"
	"time"
)

// ImageItem is a handle to one image in a source library.
// ID is stable across runs; CreatedAt is zero when the source does not know it.
type ImageItem struct {
	CreatedAt time.Time
	ID        string
	Path      string
	Group     string
}

// RecognizedLine is one line of recognized text and where it was found.
type RecognizedLine struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// Recognition is the output of a text recognizer for one image.
type Recognition struct {
	FullText string
	Lines    []RecognizedLine
}

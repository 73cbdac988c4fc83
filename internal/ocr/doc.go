// Package ocr provides a detector backend that finds containers by the text
// printed on them, using the Tesseract OCR engine via gosseract/v2.
//
// Each recognized word becomes a detection whose label is the word itself,
// so a bowl carrying a "BOWL" sticker is picked up by the ordinary target
// selection policy (case-insensitive substring match).
//
// # Prerequisites
//
// Tesseract and the language data for the configured language must be
// installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// # Coordinates
//
// Tesseract reports word boxes in pixels with a top-left origin. They are
// converted to the normalized, bottom-left origin boxes used by the
// detection package before being returned.
package ocr

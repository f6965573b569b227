// Package ocr describes optical character recognition in terms of images
// in and text out, so recognition can be driven the same way whether the
// provider is a local Tesseract install or something else. Concrete
// providers live in subpackages.
package ocr

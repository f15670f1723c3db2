// Package barcode normalizes the processor's raw barcode segments into the
// record served to client systems.
package barcode

import (
	"net/url"
	"strings"
	"time"

	"github.com/lovemage/3c-morty-sub000/internal/model"
)

// Formatter builds barcode records and their scannable image URLs.
type Formatter struct {
	imageBaseURL string
}

func NewFormatter(imageBaseURL string) *Formatter {
	return &Formatter{imageBaseURL: imageBaseURL}
}

// Format returns the normalized record, or nil when every segment is absent
// or a placeholder. The processor sends "--"/"---" before a barcode exists,
// which means "not yet generated", not an error.
func (f *Formatter) Format(seg1, seg2, seg3, referenceNo string, expireAt *time.Time) *model.Barcode {
	segments := make([]string, 0, 3)
	for _, raw := range []string{seg1, seg2, seg3} {
		// Trailing and leading dashes show up in real deliveries; tolerate them.
		s := strings.Trim(strings.TrimSpace(raw), "-")
		if s == "" {
			continue
		}
		segments = append(segments, s)
	}
	if len(segments) == 0 {
		return nil
	}

	full := strings.Join(segments, "-")
	return &model.Barcode{
		Segments:    segments,
		FullCode:    full,
		CompactCode: strings.Join(segments, ""),
		ImageURL:    f.imageBaseURL + "?barcode=" + url.QueryEscape(full),
		ReferenceNo: referenceNo,
		ExpireAt:    expireAt,
	}
}

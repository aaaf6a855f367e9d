package processors

import (
	"reflect"
	"testing"

	"github.com/docpipe/engine/pipeline"
	"github.com/rs/zerolog"
)

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		total   int
		want    []int
		wantErr bool
	}{
		{name: "empty spec selects zero pages", spec: "", total: 5, want: nil},
		{name: "single page", spec: "1", total: 5, want: []int{1}},
		{name: "comma list", spec: "1,3", total: 5, want: []int{1, 3}},
		{name: "range", spec: "2-4", total: 5, want: []int{2, 3, 4}},
		{name: "mixed list and range", spec: "1,3-4", total: 5, want: []int{1, 3, 4}},
		{name: "deduplicates overlapping tokens", spec: "1,1-2", total: 5, want: []int{1, 2}},
		{name: "out of range token errors", spec: "6", total: 5, wantErr: true},
		{name: "malformed token errors", spec: "abc", total: 5, wantErr: true},
		{name: "empty segment errors", spec: "1,,2", total: 5, wantErr: true},
		{name: "reversed range errors", spec: "4-2", total: 5, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parsePageRange(tc.spec, tc.total)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for spec %q", tc.spec)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("parsePageRange(%q, %d) = %v, want %v", tc.spec, tc.total, got, tc.want)
			}
		})
	}
}

func TestPDFExtractor_ValidateConfig(t *testing.T) {
	base := pipeline.NewBaseProcessor("pdf_extractor", pipeline.Config{}, zerolog.Nop())

	t.Run("rejects non-positive resolution", func(t *testing.T) {
		p := newPDFExtractor(pipeline.Config{"resolution": -1}, base)
		if err := p.ValidateConfig(); err == nil {
			t.Fatal("expected error for non-positive resolution")
		}
	})

	t.Run("rejects unsupported image format", func(t *testing.T) {
		p := newPDFExtractor(pipeline.Config{"image_format": "BMP"}, base)
		if err := p.ValidateConfig(); err == nil {
			t.Fatal("expected error for unsupported image_format")
		}
	})

	t.Run("rejects malformed page_range", func(t *testing.T) {
		p := newPDFExtractor(pipeline.Config{"page_range": "abc"}, base)
		if err := p.ValidateConfig(); err == nil {
			t.Fatal("expected error for malformed page_range")
		}
	})

	t.Run("distinguishes absent page_range from empty", func(t *testing.T) {
		all := newPDFExtractor(pipeline.Config{}, base)
		if all.rangeSet {
			t.Fatal("absent page_range should select every page")
		}
		none := newPDFExtractor(pipeline.Config{"page_range": ""}, base)
		if !none.rangeSet {
			t.Fatal("explicit empty page_range should select zero pages")
		}
	})

	t.Run("accepts valid config", func(t *testing.T) {
		p := newPDFExtractor(pipeline.Config{"resolution": 150, "image_format": "PNG", "page_range": "1,3-4"}, base)
		if err := p.ValidateConfig(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

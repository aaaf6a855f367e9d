// Package processors holds the built-in Processor implementations and
// their registration with a pipeline.Registry.
package processors

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docpipe/engine/pipeline"
)

// pdfExtractor renders selected pages of a PDF to images by shelling out
// to poppler-utils (pdftoppm/pdfinfo), fanning the input payload out into
// one child per rendered page.
type pdfExtractor struct {
	pipeline.BaseProcessor
	resolution  int
	imageFormat string
	pageRange   string
	rangeSet    bool
}

func newPDFExtractor(config pipeline.Config, base pipeline.BaseProcessor) *pdfExtractor {
	_, rangeSet := config["page_range"]
	return &pdfExtractor{
		BaseProcessor: base,
		resolution:    config.Int("resolution", 150),
		imageFormat:   strings.ToUpper(config.String("image_format", "PNG")),
		pageRange:     config.String("page_range", ""),
		rangeSet:      rangeSet,
	}
}

func (p *pdfExtractor) ValidateConfig() error {
	if p.resolution <= 0 {
		return pipeline.NewConfigError("INVALID_RESOLUTION", "pdf_extractor: resolution must be positive")
	}
	switch p.imageFormat {
	case "PNG", "JPEG", "TIFF":
	default:
		return pipeline.NewConfigError("INVALID_IMAGE_FORMAT", fmt.Sprintf("pdf_extractor: unsupported image_format %q", p.imageFormat))
	}
	if p.pageRange != "" {
		if _, err := parsePageRange(p.pageRange, 1<<30); err != nil {
			return pipeline.NewConfigError("INVALID_PAGE_RANGE", "pdf_extractor: "+err.Error())
		}
	}
	return nil
}

func (p *pdfExtractor) Execute(ctx context.Context, payload pipeline.Payload) pipeline.Result {
	start := time.Now()

	workDir, err := os.MkdirTemp("", "docpipe-pdf-*")
	if err != nil {
		return pipeline.Failure(p.Name(), fmt.Sprintf("create temp dir: %v", err), pipeline.Metadata{}, time.Since(start))
	}
	defer os.RemoveAll(workDir)

	pdfPath := filepath.Join(workDir, "input.pdf")
	if err := os.WriteFile(pdfPath, payload.FileContent, 0o600); err != nil {
		return pipeline.Failure(p.Name(), fmt.Sprintf("write input pdf: %v", err), pipeline.Metadata{}, time.Since(start))
	}

	totalPages, err := countPages(ctx, pdfPath)
	if err != nil {
		return pipeline.Failure(p.Name(), err.Error(), pipeline.Metadata{}, time.Since(start))
	}

	// An absent page_range selects every page; a present-but-empty one
	// selects none (success with zero children).
	var pages []int
	if !p.rangeSet {
		pages = make([]int, totalPages)
		for i := range pages {
			pages[i] = i + 1
		}
	} else if pages, err = parsePageRange(p.pageRange, totalPages); err != nil {
		return pipeline.Failure(p.Name(), err.Error(), pipeline.Metadata{}, time.Since(start))
	}

	if len(pages) == 0 {
		return pipeline.Success(p.Name(), "no pages selected", &pipeline.StructuredResults{}, pipeline.Metadata{}, time.Since(start))
	}

	outputPrefix := filepath.Join(workDir, "page")
	args := []string{"-f", strconv.Itoa(pages[0]), "-l", strconv.Itoa(pages[len(pages)-1]), formatFlag(p.imageFormat), "-r", strconv.Itoa(p.resolution), pdfPath, outputPrefix}
	cmd := exec.CommandContext(ctx, "pdftoppm", args...)
	if err := cmd.Run(); err != nil {
		return pipeline.Failure(p.Name(), fmt.Sprintf("pdftoppm failed: %v", err), pipeline.Metadata{}, time.Since(start))
	}

	children := make([]pipeline.Payload, 0, len(pages))
	for _, page := range pages {
		imgPath := fmt.Sprintf("%s-%0*d.%s", outputPrefix, digits(totalPages), page, strings.ToLower(extFor(p.imageFormat)))
		content, err := os.ReadFile(imgPath)
		if err != nil {
			return pipeline.Failure(p.Name(), fmt.Sprintf("read rendered page %d: %v", page, err), pipeline.Metadata{}, time.Since(start))
		}
		pageNum := page
		children = append(children, payload.Child(content, &pageNum))
	}

	sr := &pipeline.StructuredResults{DocumentPayloads: children}
	return pipeline.Success(p.Name(), fmt.Sprintf("extracted %d page(s)", len(children)), sr, pipeline.Metadata{}, time.Since(start))
}

func formatFlag(format string) string {
	switch format {
	case "JPEG":
		return "-jpeg"
	case "TIFF":
		return "-tiff"
	default:
		return "-png"
	}
}

func extFor(format string) string {
	switch format {
	case "JPEG":
		return "jpg"
	case "TIFF":
		return "tif"
	default:
		return "png"
	}
}

func digits(n int) int {
	d := len(strconv.Itoa(n))
	if d < 2 {
		return 2
	}
	return d
}

func countPages(ctx context.Context, pdfPath string) (int, error) {
	out, err := exec.CommandContext(ctx, "pdfinfo", pdfPath).Output()
	if err != nil {
		return 0, fmt.Errorf("pdfinfo failed: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "Pages:") {
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
			if err != nil {
				return 0, fmt.Errorf("could not parse page count: %w", err)
			}
			return n, nil
		}
	}
	return 0, fmt.Errorf("could not determine page count")
}

// parsePageRange parses a comma-separated list of ints or start-end
// ranges (e.g. "1,3-4") into a sorted, de-duplicated list of page
// numbers bounded by [1, totalPages]. An empty spec selects zero pages,
// producing a successful zero-children result.
func parsePageRange(spec string, totalPages int) ([]int, error) {
	if spec == "" {
		return nil, nil
	}

	seen := make(map[int]bool)
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, fmt.Errorf("malformed page_range token: empty segment")
		}
		if strings.Contains(token, "-") {
			parts := strings.SplitN(token, "-", 2)
			start, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
			end, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err1 != nil || err2 != nil || start < 1 || end < start || end > totalPages {
				return nil, fmt.Errorf("malformed or out-of-range page_range token %q", token)
			}
			for p := start; p <= end; p++ {
				seen[p] = true
			}
			continue
		}
		p, err := strconv.Atoi(token)
		if err != nil || p < 1 || p > totalPages {
			return nil, fmt.Errorf("malformed or out-of-range page_range token %q", token)
		}
		seen[p] = true
	}

	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages, nil
}

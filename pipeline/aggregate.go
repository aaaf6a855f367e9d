package pipeline

import (
	"sort"
	"strings"
)

// AggregateStatus is the terminal status of a DocumentProcessingResult,
// distinct from a single step's Status.
type AggregateStatus string

const (
	AggregateSuccess AggregateStatus = "success"
	AggregateFailure AggregateStatus = "failure"
)

// DocumentProcessingResult is a run's final output.
type DocumentProcessingResult struct {
	JobID        string
	DocumentID   string
	Status       AggregateStatus
	ErrorMessage string
	Results      []Result
	FinalOutput  AggregatedOutput
}

// AggregatedOutput is the page-centric tree the Result Aggregator folds a
// flat result list into.
type AggregatedOutput struct {
	DocumentID           string
	Status               AggregateStatus
	ErrorMessage         string
	Pages                []Page
	DocumentLevelResults map[string]*StructuredResults
}

// Page holds every per-processor structured result keyed by
// "<processor>_result" for one page number.
type Page struct {
	PageNumber int
	Results    map[string]*StructuredResults
}

// Aggregate folds results into a document-centric tree. It is a pure
// function of its inputs: running it twice on the same results yields an
// equal output.
func Aggregate(jobID, documentID string, results []Result) DocumentProcessingResult {
	out := AggregatedOutput{
		DocumentID:           documentID,
		Status:               AggregateSuccess,
		DocumentLevelResults: make(map[string]*StructuredResults),
	}

	pagesByNumber := make(map[int]*Page)

	for _, res := range results {
		if res.ProcessorName == "pipeline_orchestrator" && res.Status == StatusFailure {
			out.Status = AggregateFailure
			out.ErrorMessage = res.ErrorMessage
			continue
		}
		if res.Status != StatusSuccess {
			continue
		}

		key := strings.TrimSuffix(res.ProcessorName, "_processor") + "_result"

		if res.Metadata.PageNumber != nil {
			pn := *res.Metadata.PageNumber
			page, ok := pagesByNumber[pn]
			if !ok {
				page = &Page{PageNumber: pn, Results: make(map[string]*StructuredResults)}
				pagesByNumber[pn] = page
			}
			page.Results[key] = res.StructuredResults
		} else {
			out.DocumentLevelResults[key] = res.StructuredResults
		}
	}

	pages := make([]Page, 0, len(pagesByNumber))
	for _, p := range pagesByNumber {
		pages = append(pages, *p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	out.Pages = pages

	docStatus := out.Status
	docErr := out.ErrorMessage
	if docStatus == "" {
		docStatus = AggregateSuccess
	}

	return DocumentProcessingResult{
		JobID:        jobID,
		DocumentID:   documentID,
		Status:       docStatus,
		ErrorMessage: docErr,
		Results:      results,
		FinalOutput:  out,
	}
}

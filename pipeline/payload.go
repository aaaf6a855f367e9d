// Package pipeline implements the document processing pipeline engine:
// configurable, multi-step document-analysis workflows over a PDF or
// image input, executed either as a linear sequence of processors with
// fan-out, or as a DAG with level-parallel execution.
package pipeline

import (
	"crypto/md5" //nolint:gosec // content-addressed naming, not a security boundary
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of a single processor execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusSkipped Status = "skipped"
)

// Payload is the unit of data flowing between pipeline steps.
//
// job_id and document_id never change across a run. page_number is
// unique per sibling produced by the same fan-out. Results is an
// append-only lineage: a step may only append its own Result before
// forwarding the payload.
type Payload struct {
	JobID            string
	FileName         string
	FileContent      []byte
	DocumentID       string
	ParentDocumentID string
	PageNumber       *int
	Results          []Result
}

// NewRootPayload builds the initial payload for a run. DocumentID is the
// content hash of the original bytes, matching the object-store key
// (documents/<md5(file_bytes)>_<file_name>).
func NewRootPayload(jobID, fileName string, content []byte) Payload {
	return Payload{
		JobID:       jobID,
		FileName:    fileName,
		FileContent: content,
		DocumentID:  ContentDigest(content),
	}
}

// ContentDigest returns the hex md5 digest used both as the document_id
// and as the object-store key prefix.
func ContentDigest(content []byte) string {
	sum := md5.Sum(content) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// WithResult returns a copy of the payload with result appended to its
// lineage. It never mutates the receiver: a processor must not mutate
// its input payload.
func (p Payload) WithResult(r Result) Payload {
	next := p
	next.Results = make([]Result, len(p.Results)+1)
	copy(next.Results, p.Results)
	next.Results[len(p.Results)] = r
	return next
}

// Child builds a fan-out child payload. DocumentID stays the root
// document's stable identifier; only ParentDocumentID derives from the
// parent. A child with a nil pageNumber gets a fresh synthetic key from
// the executor instead.
func (p Payload) Child(content []byte, pageNumber *int) Payload {
	child := Payload{
		JobID:            p.JobID,
		FileName:         p.FileName,
		FileContent:      content,
		DocumentID:       p.DocumentID,
		ParentDocumentID: p.DocumentID,
		PageNumber:       pageNumber,
	}
	return child
}

// SyntheticKey mints a unique map key for a fan-out child with no page
// number, used by the Linear and DAG executors.
func SyntheticKey() string {
	return uuid.NewString()
}

// StructuredResults is the machine-readable payload of a processor
// result. Two fields carry flow control:
//   - ImageData: the step replaces the current payload's bytes (1:1).
//   - DocumentPayloads: the step fans out; later steps run once per
//     child.
//
// The remaining fields are processor-specific output, expressed as one
// struct with mutually-exclusive fields rather than an interface, since
// every caller (the aggregator) needs to inspect several of them
// generically for logging.
type StructuredResults struct {
	// ImageData signals 1:1 propagation: the payload's bytes become this.
	ImageData []byte

	// DocumentPayloads signals fan-out: one payload becomes many.
	DocumentPayloads []Payload

	// Text is the ocr processor's recognized text.
	Text string

	// Analysis is the vlm processor's free-text model output.
	Analysis string

	// DocumentType is the classifier processor's chosen label.
	DocumentType string

	// Sentiment and Score are the sentiment processor's outputs.
	Sentiment string
	Score     int

	// Steps carries the image_preprocessor's per-sub-op instrumentation.
	Steps []SubStepResult

	// Extra holds any processor-specific data that doesn't fit the
	// fields above. No built-in processor sets it.
	Extra map[string]any
}

// IsFanOut reports whether this result instructs the executor to
// replace the current payload set with DocumentPayloads.
func (s *StructuredResults) IsFanOut() bool {
	return s != nil && len(s.DocumentPayloads) > 0
}

// HasImage reports whether this result carries 1:1 propagation bytes.
func (s *StructuredResults) HasImage() bool {
	return s != nil && len(s.ImageData) > 0
}

// SubStepResult is the instrumentation record for one image_preprocessor
// sub-operation (deskew, binarize, …).
type SubStepResult struct {
	StepName        string
	Params          map[string]any
	InputHash       string
	OutputHash      string
	ExecutionTimeMS int64
}

// Metadata is the minimum metadata every Result carries.
type Metadata struct {
	PageNumber       *int
	ParentDocumentID string
	ExecutionTimeMS  int64
	Extra            map[string]any
}

// Result is emitted by every processor invocation, always via the
// instrumentation wrapper. Direct invocation bypasses timing, panic
// recovery, and status publication.
type Result struct {
	ProcessorName     string
	Status            Status
	Output            string
	StructuredResults *StructuredResults
	ErrorMessage      string
	Metadata          Metadata
}

// Success builds a success Result carrying the elapsed wall time.
func Success(processorName, output string, sr *StructuredResults, meta Metadata, elapsed time.Duration) Result {
	meta.ExecutionTimeMS = elapsed.Milliseconds()
	return Result{
		ProcessorName:     processorName,
		Status:            StatusSuccess,
		Output:            output,
		StructuredResults: sr,
		Metadata:          meta,
	}
}

// Failure builds a failure Result.
func Failure(processorName, errMsg string, meta Metadata, elapsed time.Duration) Result {
	meta.ExecutionTimeMS = elapsed.Milliseconds()
	return Result{
		ProcessorName: processorName,
		Status:        StatusFailure,
		ErrorMessage:  errMsg,
		Metadata:      meta,
	}
}

// Skipped builds a skipped Result, used by the DAG executor when all of
// a node's dependencies failed or produced no payloads.
func Skipped(processorName, reason string, meta Metadata) Result {
	return Result{
		ProcessorName: processorName,
		Status:        StatusSkipped,
		Output:        reason,
		Metadata:      meta,
	}
}

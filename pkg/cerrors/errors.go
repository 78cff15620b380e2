// Package cerrors holds the domain error taxonomy for the project engine:
// a closed set of coded, wrappable errors that VCS/config/pipeline code
// raises and that callers can match with errors.Is/errors.As.
package cerrors

import (
	"errors"
	"fmt"
)

const (
	CodeProjectNotFound       = "PROJECT_NOT_FOUND"
	CodeProjectAlreadyExists  = "PROJECT_ALREADY_EXISTS"
	CodeDetachedProject       = "DETACHED_PROJECT"
	CodeReadonlyProject       = "READONLY_PROJECT"
	CodeSourceExists          = "SOURCE_EXISTS"
	CodeUnknownSource         = "UNKNOWN_SOURCE"
	CodeModelExists           = "MODEL_EXISTS"
	CodeUnknownModel          = "UNKNOWN_MODEL"
	CodeRemoteExists          = "REMOTE_EXISTS"
	CodeUnknownRemote         = "UNKNOWN_REMOTE"
	CodeUnknownRef            = "UNKNOWN_REF"
	CodeUnknownStage          = "UNKNOWN_STAGE"
	CodeMissingObject         = "MISSING_OBJECT"
	CodeEmptyPipeline         = "EMPTY_PIPELINE"
	CodeMissingPipelineHead   = "MISSING_PIPELINE_HEAD"
	CodeMultiplePipelineHeads = "MULTIPLE_PIPELINE_HEADS"
	CodeDatasetMerge          = "DATASET_MERGE"
	CodeVcs                   = "VCS_ERROR"
)

// CodedError is any error carrying a stable, matchable taxonomy code.
type CodedError interface {
	error
	Code() string
}

type codedError struct {
	code string
	msg  string
	err  error
}

func (e *codedError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *codedError) Code() string  { return e.code }
func (e *codedError) Unwrap() error { return e.err }

func newCoded(code, msg string) error            { return &codedError{code: code, msg: msg} }
func wrapCoded(code, msg string, err error) error { return &codedError{code: code, msg: msg, err: err} }

// Code returns the error's taxonomy code, or "" if it isn't a CodedError
// anywhere in its chain.
func Code(err error) string {
	var ce CodedError
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

func is(err error, code string) bool { return Code(err) == code }

// ProjectNotFound: no aux dir found at or above the given path.
func ProjectNotFound(path string) error {
	return newCoded(CodeProjectNotFound, fmt.Sprintf("no project found at or above %q", path))
}
func IsProjectNotFound(err error) bool { return is(err, CodeProjectNotFound) }

// ProjectAlreadyExists: init on an existing project.
func ProjectAlreadyExists(path string) error {
	return newCoded(CodeProjectAlreadyExists, fmt.Sprintf("project already exists at %q", path))
}
func IsProjectAlreadyExists(err error) bool { return is(err, CodeProjectAlreadyExists) }

// DetachedProject: a remote-touching operation was attempted on a detached Tree.
func DetachedProject(op string) error {
	return newCoded(CodeDetachedProject, fmt.Sprintf("%s requires a non-detached tree", op))
}
func IsDetachedProject(err error) bool { return is(err, CodeDetachedProject) }

// ReadonlyProject: a mutation was attempted on a read-only (non-working) Tree.
func ReadonlyProject(op string) error {
	return newCoded(CodeReadonlyProject, fmt.Sprintf("%s is not permitted on a read-only tree", op))
}
func IsReadonlyProject(err error) bool { return is(err, CodeReadonlyProject) }

// SourceExists: a source name collision.
func SourceExists(name string) error {
	return newCoded(CodeSourceExists, fmt.Sprintf("source %q already exists", name))
}
func IsSourceExists(err error) bool { return is(err, CodeSourceExists) }

// UnknownSource: a source name that doesn't resolve.
func UnknownSource(name string) error {
	return newCoded(CodeUnknownSource, fmt.Sprintf("unknown source %q", name))
}
func IsUnknownSource(err error) bool { return is(err, CodeUnknownSource) }

// ModelExists: a model name collision.
func ModelExists(name string) error {
	return newCoded(CodeModelExists, fmt.Sprintf("model %q already exists", name))
}
func IsModelExists(err error) bool { return is(err, CodeModelExists) }

// UnknownModel: a model name that doesn't resolve.
func UnknownModel(name string) error {
	return newCoded(CodeUnknownModel, fmt.Sprintf("unknown model %q", name))
}
func IsUnknownModel(err error) bool { return is(err, CodeUnknownModel) }

// RemoteExists: a remote name collision.
func RemoteExists(name string) error {
	return newCoded(CodeRemoteExists, fmt.Sprintf("remote %q already exists", name))
}
func IsRemoteExists(err error) bool { return is(err, CodeRemoteExists) }

// UnknownRemote: a remote name that doesn't resolve.
func UnknownRemote(name string) error {
	return newCoded(CodeUnknownRemote, fmt.Sprintf("unknown remote %q", name))
}
func IsUnknownRemote(err error) bool { return is(err, CodeUnknownRemote) }

// UnknownRef: a ref that doesn't resolve in the VCS backend or cache.
func UnknownRef(ref string) error {
	return newCoded(CodeUnknownRef, fmt.Sprintf("unknown ref %q", ref))
}
func IsUnknownRef(err error) bool { return is(err, CodeUnknownRef) }

// UnknownStage: an unknown stage-type or plugin kind seen during execution.
func UnknownStage(kind string) error {
	return newCoded(CodeUnknownStage, fmt.Sprintf("unknown stage kind %q", kind))
}
func IsUnknownStage(err error) bool { return is(err, CodeUnknownStage) }

// MissingObject: a non-generated source missing from cache and unretrievable.
func MissingObject(hash string) error {
	return newCoded(CodeMissingObject, fmt.Sprintf("object %q is not cached and could not be retrieved", hash))
}
func IsMissingObject(err error) bool { return is(err, CodeMissingObject) }

// EmptyPipeline: execution was requested on a graph with 0 nodes.
func EmptyPipeline() error {
	return newCoded(CodeEmptyPipeline, "pipeline has no stages")
}
func IsEmptyPipeline(err error) bool { return is(err, CodeEmptyPipeline) }

// MissingPipelineHead: the pipeline has 0 out-degree-0 nodes.
func MissingPipelineHead() error {
	return newCoded(CodeMissingPipelineHead, "pipeline has no head node")
}
func IsMissingPipelineHead(err error) bool { return is(err, CodeMissingPipelineHead) }

// MultiplePipelineHeads: the pipeline has >=2 out-degree-0 nodes.
type MultiplePipelineHeadsErr struct {
	codedError
	Heads []string
}

func MultiplePipelineHeads(heads []string) error {
	return &MultiplePipelineHeadsErr{
		codedError: codedError{
			code: CodeMultiplePipelineHeads,
			msg:  fmt.Sprintf("pipeline has multiple heads: %v", heads),
		},
		Heads: heads,
	}
}
func IsMultiplePipelineHeads(err error) bool { return is(err, CodeMultiplePipelineHeads) }

// DatasetMerge: incompatible parents were joined; Sources names the
// contributing source nodes, per §7's "annotated with the contributing
// source-node names".
type DatasetMergeErr struct {
	codedError
	Sources []string
}

func DatasetMerge(sources []string, cause error) error {
	return &DatasetMergeErr{
		codedError: codedError{
			code: CodeDatasetMerge,
			msg:  fmt.Sprintf("cannot merge datasets from %v", sources),
			err:  cause,
		},
		Sources: sources,
	}
}
func IsDatasetMerge(err error) bool { return is(err, CodeDatasetMerge) }

// Vcs: a backend-adapter (revisionstore.Backend) operation failed.
func Vcs(op string, cause error) error {
	return wrapCoded(CodeVcs, fmt.Sprintf("vcs backend: %s", op), cause)
}
func IsVcs(err error) bool { return is(err, CodeVcs) }

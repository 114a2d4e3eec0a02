package results

import "time"

// Kind tags an Outcome.
type Kind string

const (
	KindSuccess         Kind = "success"
	KindTimeout         Kind = "timeout"
	KindCrashed         Kind = "crashed"
	KindMalformedOutput Kind = "malformed_output"
)

// Success is the payload of a successful execution.
type Success struct {
	Metrics       ToolMetrics
	ExecutionTime time.Duration
	// PeakMemory is the largest resident set observed across the process
	// tree, in bytes.
	PeakMemory uint64
	// Records is the number of output lines that parsed successfully.
	Records int
}

// Outcome is the result of supervising one analysis unit. Exactly one is
// produced per unit. Success is non-nil if and only if Kind is KindSuccess.
type Outcome struct {
	Kind    Kind
	Success *Success
	// Detail is a short human-readable reason for non-success outcomes.
	Detail string
}

func Succeeded(s Success) Outcome {
	return Outcome{Kind: KindSuccess, Success: &s}
}

func TimedOut(detail string) Outcome {
	return Outcome{Kind: KindTimeout, Detail: detail}
}

func Crashed(detail string) Outcome {
	return Outcome{Kind: KindCrashed, Detail: detail}
}

func Malformed(detail string) Outcome {
	return Outcome{Kind: KindMalformedOutput, Detail: detail}
}

// IsError reports whether the outcome is anything but a success.
func (o Outcome) IsError() bool {
	return o.Kind != KindSuccess || o.Success == nil
}

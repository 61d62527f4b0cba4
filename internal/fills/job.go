package fills

import (
	stdErrors "errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "IntentLane/internal/errors"
	"IntentLane/internal/settler"
)

// Status 表示 fill 作业在生命周期中的状态。
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSettled Status = "settled"
	StatusFailed  Status = "failed"
)

// Job 描述了排队等待结算的 fill 作业。一个作业对应一次对 Settler 的
// 提交；作业失败重试不会破坏至多一次语义，重复结算由 Settler 拒绝。
type Job struct {
	ID         string           `json:"id"`
	IntentID   common.Hash      `json:"intent_id"`
	Encoded    hexutil.Bytes    `json:"encoded"`
	Filler     common.Address   `json:"filler"`
	FillerData hexutil.Bytes    `json:"filler_data,omitempty"`
	Status     Status           `json:"status"`
	Attempts   int              `json:"attempts"`
	MaxRetries int              `json:"max_retries"`
	LastError  string           `json:"last_error,omitempty"`
	ErrorCode  string           `json:"error_code,omitempty"`
	Outcome    *settler.Outcome `json:"outcome,omitempty"`
	CreatedAt  int64            `json:"created_at"`
	UpdatedAt  int64            `json:"updated_at"`
}

var (
	// ErrJobNotFound 表示指定的作业不存在。
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "fill job not found")
	// ErrJobConflict 表示作业在当前状态下无法进行所请求的操作。
	ErrJobConflict = xerrors.New(CodeJobConflict, "fill job conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrJobSettled 表示作业已经完成结算。
	ErrJobSettled = xerrors.New(CodeJobSettled, "fill job already settled", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrJobExhausted 表示作业的重试次数已经耗尽。
	ErrJobExhausted = xerrors.New(CodeJobExhausted, "fill job retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeJobNotFound   xerrors.Code = "FILL_JOB_NOT_FOUND"
	CodeJobConflict   xerrors.Code = "FILL_JOB_CONFLICT"
	CodeJobSettled    xerrors.Code = "FILL_JOB_SETTLED"
	CodeJobExhausted  xerrors.Code = "FILL_JOB_RETRIES_EXHAUSTED"
	CodeJobValidation xerrors.Code = "FILL_JOB_VALIDATION_FAILED"
	CodeJobPublish    xerrors.Code = "FILL_JOB_PUBLISH_FAILED"
	CodeJobProcessing xerrors.Code = "FILL_JOB_PROCESSING_FAILED"
)

func init() {
	xerrors.Register(CodeJobNotFound, xerrors.Attributes{
		Message:   "fill job not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobConflict, xerrors.Attributes{
		Message:   "fill job conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobSettled, xerrors.Attributes{
		Message:   "fill job already settled",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobExhausted, xerrors.Attributes{
		Message:   "fill job retries exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeJobValidation, xerrors.Attributes{
		Message:   "fill job validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{
		Message:   "failed to publish fill job",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeJobProcessing, xerrors.Attributes{
		Message:   "fill job processing failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
}

// IsJobError 判断错误是否为统一作业错误。
func IsJobError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	if stdErrors.Is(err, ErrJobNotFound) {
		return target == CodeJobNotFound
	}
	if stdErrors.Is(err, ErrJobConflict) {
		return target == CodeJobConflict
	}
	if stdErrors.Is(err, ErrJobSettled) {
		return target == CodeJobSettled
	}
	if stdErrors.Is(err, ErrJobExhausted) {
		return target == CodeJobExhausted
	}
	return false
}

// IsValidStatus 检查给定的作业状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSettled, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneJob(job *Job) *Job {
	clone := *job
	if job.Outcome != nil {
		outcomeCopy := *job.Outcome
		clone.Outcome = &outcomeCopy
	}
	clone.Encoded = append(hexutil.Bytes(nil), job.Encoded...)
	clone.FillerData = append(hexutil.Bytes(nil), job.FillerData...)
	return &clone
}

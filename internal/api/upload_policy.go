package api

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/gofiber/fiber/v2"
)

// UploadCandidate is what the upload rule sees about an incoming file.
type UploadCandidate struct {
	Size        int64
	ContentType string
	FileName    string
}

func (u UploadCandidate) env() map[string]any {
	return map[string]any{
		"size":        u.Size,
		"contentType": u.ContentType,
		"fileName":    u.FileName,
		"ext":         strings.ToLower(filepath.Ext(u.FileName)),
	}
}

// UploadPolicy admits or rejects uploads by size and an optional expression.
type UploadPolicy struct {
	maxSize int64
	rule    string
	program *vm.Program
}

// NewUploadPolicy compiles rule. An empty rule admits every file within maxSize.
func NewUploadPolicy(maxSize int64, rule string) (*UploadPolicy, error) {
	p := &UploadPolicy{maxSize: maxSize, rule: rule}
	if strings.TrimSpace(rule) == "" {
		return p, nil
	}
	prog, err := expr.Compile(rule, expr.Env(UploadCandidate{}.env()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile upload rule: %w", err)
	}
	p.program = prog
	return p, nil
}

// MaxSize is the largest accepted upload in bytes.
func (p *UploadPolicy) MaxSize() int64 {
	return p.maxSize
}

// Check returns nil when the candidate is admitted.
func (p *UploadPolicy) Check(u UploadCandidate) *AppError {
	if p.maxSize > 0 && u.Size > p.maxSize {
		msg := fmt.Sprintf("File too large: %d bytes (max %d)", u.Size, p.maxSize)
		return NewAppError("FILE_TOO_LARGE", fiber.StatusRequestEntityTooLarge, msg)
	}
	if p.program == nil {
		return nil
	}

	result, err := expr.Run(p.program, u.env())
	if err != nil {
		return NewAppError("UPLOAD_REJECTED", fiber.StatusUnprocessableEntity,
			fmt.Sprintf("upload rule evaluation error: %v", err))
	}
	if ok, _ := result.(bool); !ok {
		return &AppError{
			Code:    "UPLOAD_REJECTED",
			Status:  fiber.StatusUnprocessableEntity,
			Message: "File rejected by upload rule",
			Details: []ErrorDetail{{Field: "file", Rule: "expression", Message: p.rule}},
		}
	}
	return nil
}

package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/sandflow/types"
)

// codePreviewLen bounds how much code the audit log records.
const codePreviewLen = 200

// IdentityChecker validates a caller before any pipeline stage runs.
// Implementations reject unknown or disabled principals.
type IdentityChecker interface {
	CheckIdentity(id string) (*types.Principal, error)
}

// AllowAllIdentities accepts every caller as an enabled principal.
// Used when the deployment handles authentication upstream.
type AllowAllIdentities struct{}

// CheckIdentity implements IdentityChecker.
func (AllowAllIdentities) CheckIdentity(id string) (*types.Principal, error) {
	if strings.TrimSpace(id) == "" {
		return nil, types.NewError(types.ErrPermissionDenied, "caller identity is required")
	}
	return &types.Principal{ID: id, Enabled: true}, nil
}

// AuditRecord tracks one execution from acceptance to completion.
type AuditRecord struct {
	ExecutionID string
	Identity    string
	Fingerprint string
	CodeLines   int
	StartedAt   time.Time

	logger *zap.Logger
}

// BeginAudit opens an audit record and logs the acceptance of the
// request with a code fingerprint and preview.
func BeginAudit(logger *zap.Logger, identity, code string) *AuditRecord {
	if logger == nil {
		logger = zap.NewNop()
	}
	sum := sha256.Sum256([]byte(code))
	rec := &AuditRecord{
		ExecutionID: uuid.NewString(),
		Identity:    identity,
		Fingerprint: hex.EncodeToString(sum[:8]),
		CodeLines:   strings.Count(code, "\n") + 1,
		StartedAt:   time.Now(),
		logger:      logger,
	}

	preview := code
	if len(preview) > codePreviewLen {
		preview = preview[:codePreviewLen] + "..."
	}
	logger.Info("code execution started",
		zap.String("execution_id", rec.ExecutionID),
		zap.String("identity", identity),
		zap.String("fingerprint", rec.Fingerprint),
		zap.Int("code_length", len(code)),
		zap.Int("code_lines", rec.CodeLines),
		zap.String("code_preview", preview),
	)
	return rec
}

// Duration returns the elapsed time since the record opened.
func (r *AuditRecord) Duration() time.Duration {
	return time.Since(r.StartedAt)
}

// End closes the record, logging success or the classified failure.
func (r *AuditRecord) End(err error) {
	fields := []zap.Field{
		zap.String("execution_id", r.ExecutionID),
		zap.String("identity", r.Identity),
		zap.Duration("duration", r.Duration()),
	}
	if err != nil {
		fields = append(fields,
			zap.String("error_code", string(types.GetErrorCode(err))),
			zap.Error(err),
		)
		r.logger.Warn("code execution failed", fields...)
		return
	}
	r.logger.Info("code execution completed", fields...)
}

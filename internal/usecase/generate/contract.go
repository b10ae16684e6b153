package generate

import (
	"context"
	"encoding/json"

	domquota "github.com/kailas-cloud/replyguard/internal/domain/quota"
	"github.com/kailas-cloud/replyguard/internal/domain/reply"
)

// Admitter decides and records admission in one step.
type Admitter interface {
	TryAdmit(ctx context.Context, emailContent, subject string) domquota.AdmissionResult
}

// Upstream produces reply drafts.
type Upstream interface {
	Generate(ctx context.Context, mode reply.Mode, req reply.Request, bearer string) (json.RawMessage, error)
}

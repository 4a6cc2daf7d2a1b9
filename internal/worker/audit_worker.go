package worker

import (
	"github.com/spec-kit/visitor-identity/internal/service"
)

// StartAuditWorker registers audit handlers on the session event stream.
func StartAuditWorker(auditService *service.AuditService) {
	if auditService == nil {
		return
	}
	auditService.RegisterHandlers()
}

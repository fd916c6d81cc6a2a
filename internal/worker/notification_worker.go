package worker

import (
	"github.com/spec-kit/helpdesk-pipeline/internal/service"
)

// StartNotificationWorker registers the event relay handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

package webhook

// Event names carried in the webhook payload's "event" field.
const (
	EventPostPublished    = "post.published"
	EventPostFailed       = "post.failed"
	EventAnalyticsUpdated = "analytics.updated"
)

// KnownEvent reports whether subscribers may register for the given event.
func KnownEvent(event string) bool {
	switch event {
	case EventPostPublished, EventPostFailed, EventAnalyticsUpdated:
		return true
	}
	return false
}

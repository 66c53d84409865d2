package events

import "fmt"

// Subject naming conventions.
//
// Hierarchy:
//   voicegate.calls.<stream_sid>.<event_suffix>  - Per-call events
//
// Wildcard subscriptions:
//   voicegate.calls.>                            - All call events
//   voicegate.calls.*.ended                      - All call.ended events
const (
	// SubjectPrefix is the root of all voicegate subjects
	SubjectPrefix = "voicegate"

	// Call event subjects
	SubjectCalls       = SubjectPrefix + ".calls"
	SubjectCallStarted = "started"
	SubjectCallEnded   = "ended"
)

// CallSubject builds a subject for a specific call event.
// Example: CallSubject("MZ123", "ended") => "voicegate.calls.MZ123.ended"
func CallSubject(streamSid string, eventSuffix string) string {
	if streamSid == "" {
		streamSid = "unknown"
	}
	return fmt.Sprintf("%s.%s.%s", SubjectCalls, streamSid, eventSuffix)
}

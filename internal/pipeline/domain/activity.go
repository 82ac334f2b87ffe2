package domain

// ActivityType labels a lead's activity log entry. Transition entries are
// written once per committed change; contact entries are logged by users.
type ActivityType string

const (
	ActivityCreated     ActivityType = "CREATED"
	ActivityStageChange ActivityType = "STAGE_CHANGE"
	ActivityReorder     ActivityType = "REORDER"
	ActivityWon         ActivityType = "WON"
	ActivityLost        ActivityType = "LOST"
	ActivityUpdated     ActivityType = "UPDATED"
	ActivityDeleted     ActivityType = "DELETED"

	ActivityCall    ActivityType = "CALL"
	ActivityMeeting ActivityType = "MEETING"
	ActivityEmail   ActivityType = "EMAIL"
	ActivityMessage ActivityType = "MESSAGE"
	ActivityNote    ActivityType = "NOTE"
)

// IsContact reports whether users may log entries of this type by hand.
func (t ActivityType) IsContact() bool {
	switch t {
	case ActivityCall, ActivityMeeting, ActivityEmail, ActivityMessage, ActivityNote:
		return true
	}
	return false
}

package domain

// Category classifies a user-facing notification. Each category carries a
// fixed action set and interaction requirement; callers cannot override them.
type Category string

const (
	CategorySessionReminder Category = "session-reminder"
	CategoryPaymentPending  Category = "payment-pending"
	CategoryPatientWaiting  Category = "patient-waiting"
	CategoryTestCompleted   Category = "test-completed"
	CategoryEmergency       Category = "emergency"
)

// Action is one interactive option attached to a delivered notification.
type Action struct {
	ActionID string `json:"action_id"`
	Label    string `json:"label"`
}

// categoryActions holds the fixed, ordered action set per category.
var categoryActions = map[Category][]Action{
	CategorySessionReminder: {
		{ActionID: "join", Label: "Join session"},
		{ActionID: "postpone", Label: "Postpone"},
	},
	CategoryPaymentPending: {
		{ActionID: "send-reminder", Label: "Send reminder"},
		{ActionID: "view-details", Label: "View details"},
	},
	CategoryPatientWaiting: {
		{ActionID: "admit", Label: "Admit"},
		{ActionID: "send-message", Label: "Send message"},
	},
	CategoryTestCompleted: {
		{ActionID: "view-results", Label: "View results"},
		{ActionID: "schedule-review", Label: "Schedule review"},
	},
	CategoryEmergency: {
		{ActionID: "respond", Label: "Respond"},
		{ActionID: "call-emergency", Label: "Call emergency services"},
	},
}

// ActionsFor returns the fixed action set of a category. The returned slice
// must not be mutated.
func ActionsFor(c Category) []Action {
	return categoryActions[c]
}

// RequiresInteraction reports whether a category demands explicit user
// interaction before dismissal. Only emergencies do.
func RequiresInteraction(c Category) bool {
	return c == CategoryEmergency
}

// KnownCategory reports whether c is one of the defined categories.
func KnownCategory(c Category) bool {
	_, ok := categoryActions[c]
	return ok
}

// RecipientContext carries free-form display fields for the notification
// body and for action route resolution.
type RecipientContext map[string]string

// NotificationEvent is a transient presentation request. It is constructed,
// dispatched and discarded; delivery channels do not retain it beyond
// presentation.
type NotificationEvent struct {
	Category           Category         `json:"category"`
	Title              string           `json:"title"`
	Body               string           `json:"body"`
	Recipient          RecipientContext `json:"recipient,omitempty"`
	Actions            []Action         `json:"actions"`
	RequireInteraction bool             `json:"require_interaction"`

	// DedupeTag collapses events: within the delivery channel's buffering
	// window the most recent event with a given tag replaces earlier ones.
	DedupeTag string `json:"dedupe_tag"`
}

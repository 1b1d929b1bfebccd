package model

// HistoryWindows groups a user's rows for the history page. The windows
// overlap: LastWeek also contains Today and Yesterday. Day is the calendar
// date (YYYY-MM-DD) the windows were computed for.
type HistoryWindows struct {
	Day       string           `json:"day"`
	Today     []QuestionAnswer `json:"today"`
	Yesterday []QuestionAnswer `json:"yesterday"`
	LastWeek  []QuestionAnswer `json:"last_week"`
}

package wire

// Mood is the closing disposition a side reports when it leaves a mailbox.
type Mood string

const (
	MoodHappy  Mood = "happy"
	MoodLonely Mood = "lonely"
	MoodScary  Mood = "scary"
	MoodErrory Mood = "errory"
)

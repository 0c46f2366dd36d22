package transcript

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	User Speaker = "user"
	Bot  Speaker = "bot"
)

// Valid reports whether s is one of the known speakers.
func (s Speaker) Valid() bool {
	switch s {
	case User, Bot:
		return true
	}
	return false
}

// String returns the underlying string value of the speaker.
func (s Speaker) String() string {
	return string(s)
}

package core

// Logger is any service that can record application events.
// args may contain errors, maps of extra data and the user the event relates to.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the user an event relates to.
type Person struct {
	ID    string
	Name  string
	Email string
}

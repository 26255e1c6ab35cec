package voicelink

// Ptr returns a pointer to the given value. Convenient for the optional
// pointer fields of SessionConfig.
func Ptr[T any](v T) *T { return &v }

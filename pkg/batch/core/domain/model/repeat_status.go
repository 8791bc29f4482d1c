package model

// RepeatStatus tells a repeating work unit whether there is more to do.
type RepeatStatus int

const (
	RepeatStatusFinished RepeatStatus = iota
	RepeatStatusContinuable
)

// ContinueIf returns CONTINUABLE when continuable is true.
func ContinueIf(continuable bool) RepeatStatus {
	if continuable {
		return RepeatStatusContinuable
	}
	return RepeatStatusFinished
}

// IsContinuable reports whether the work unit wants to be called again.
func (r RepeatStatus) IsContinuable() bool {
	return r == RepeatStatusContinuable
}

// And returns CONTINUABLE only if r is CONTINUABLE and value is true.
func (r RepeatStatus) And(value bool) RepeatStatus {
	return ContinueIf(value && r.IsContinuable())
}

func (r RepeatStatus) String() string {
	if r.IsContinuable() {
		return "CONTINUABLE"
	}
	return "FINISHED"
}

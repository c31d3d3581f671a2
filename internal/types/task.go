package types

type TaskKind string

const (
	SubmitTask   TaskKind = "submit_order"
	PollTask     TaskKind = "poll_result"
	FinalizeTask TaskKind = "finalize"
)

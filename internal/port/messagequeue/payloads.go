package messagequeue

// TaskStartedPayload is the schema for viz.tasks.started messages.
type TaskStartedPayload struct {
	TaskID   string `json:"task_id"`
	Type     string `json:"type"`
	Database string `json:"database"`
}

// TaskIterationPayload is the schema for viz.tasks.iteration messages.
type TaskIterationPayload struct {
	TaskID     string `json:"task_id"`
	Iteration  int    `json:"iteration"`
	ExecStatus string `json:"exec_status"`
	Problem    string `json:"problem,omitempty"`
}

// TaskCompletedPayload is the schema for viz.tasks.completed messages.
type TaskCompletedPayload struct {
	TaskID         string `json:"task_id"`
	FinalStatus    string `json:"final_status"`
	IterationsUsed int    `json:"iterations_used"`
	ChartPath      string `json:"chart_path,omitempty"`
}

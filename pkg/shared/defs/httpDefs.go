package defs

// RegisterBody is sent once to the coordinator's /register endpoint
type RegisterBody struct {
	Id  string `json:"id"`
	Url string `json:"url"`
}

// PulseBody is sent to the coordinator's /pulse endpoint on every tick
type PulseBody struct {
	Id string `json:"id"`
}

type WorkerInfo struct {
	Id                string `json:"id"`
	Port              int    `json:"port"`
	PublicUrl         string `json:"public_url"`
	HeartbeatInterval int64  `json:"heartbeat_interval"`
	Timestamp         int64  `json:"timestamp"`
}

type CoordinatorInfo struct {
	Url    string `json:"url"`
	Status string `json:"status"`
	// Unix milliseconds, nil until the first successful pulse
	LastHeartbeat *int64 `json:"last_heartbeat"`
}

// WorkerStatus is the document served on /status and pushed over /ws
type WorkerStatus struct {
	Worker      WorkerInfo      `json:"worker"`
	Coordinator CoordinatorInfo `json:"coordinator"`
}

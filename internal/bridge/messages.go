package bridge

// Wire contracts between the monitored page and the capture daemon. The
// bridge translates these 1:1 onto orchestrator calls and broadcasts; it
// keeps no state of its own.

type pageRequest struct {
	Type     string `json:"type"`
	TargetID string `json:"targetId"`
}

type pongMessage struct {
	Type      string `json:"type"`
	Installed bool   `json:"installed"`
}

// presenceMessage is sent unprompted a few times after connect so a page
// that initializes late still learns the capture subsystem is present.
type presenceMessage struct {
	Type      string `json:"type"`
	Installed bool   `json:"installed"`
}

type startResult struct {
	Type       string `json:"type"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	HasAmbient bool   `json:"hasAmbient"`
	HasLocal   bool   `json:"hasLocal"`
}

type stopResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type statusResult struct {
	Type        string `json:"type"`
	IsRecording bool   `json:"isRecording"`
	IsPaused    bool   `json:"isPaused"`
	Installed   bool   `json:"installed"`
}

type startedEvent struct {
	Type       string `json:"type"`
	HasAmbient bool   `json:"hasAmbient"`
	HasLocal   bool   `json:"hasLocal"`
}

type stoppedEvent struct {
	Type string `json:"type"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type chunkEvent struct {
	Type      string `json:"type"`
	Data      string `json:"data"`
	MimeType  string `json:"mimeType"`
	Timestamp int64  `json:"timestamp"`
}

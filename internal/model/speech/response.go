package speech

import "time"

// TTSResponse 语音合成响应
type TTSResponse struct {
	AudioData   []byte    `json:"-"`
	ContentType string    `json:"contentType"`
	Format      string    `json:"format"`
	VoiceID     string    `json:"voiceId"`
	RequestID   string    `json:"requestId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HealthResponse 语音服务健康状态
type HealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId,omitempty"`
	Model    string `json:"model,omitempty"`
}

package speech

import "github.com/zhouzirui/yui-companion/backend/internal/model/chat"

// SynthesizeRequest 是 /synthesize 接口的请求体
type SynthesizeRequest struct {
	Message chat.Message `json:"message"`
}

// TTSRequest 语音合成请求
type TTSRequest struct {
	Text     string        `json:"text"`
	VoiceID  string        `json:"-"`
	ModelID  string        `json:"model_id"`
	Settings VoiceSettings `json:"voice_settings"`
}

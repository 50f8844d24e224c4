package speech

// VoiceSettings 语音合成的音色参数
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// DefaultVoiceSettings 返回默认音色参数
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
}

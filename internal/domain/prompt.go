package domain

// Prompt template tags
const (
	PromptImageStructured = "image_structured"
	PromptAudioStructured = "audio_structured"
	PromptImageDescribe   = "image_describe"
	PromptStructureText   = "structure_text"
)

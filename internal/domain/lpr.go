package domain

// LPRRequestDTO carries a camera frame for plate recognition.
type LPRRequestDTO struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
}

type LPRResponseDTO struct {
	DetectedPlate string           `json:"detected_plate"`
	Confidence    float32          `json:"confidence,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	Result        *EntryExitResult `json:"result,omitempty"`
}

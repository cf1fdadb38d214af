package gemini

// Wire types of the generateContent endpoint

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

// text returns the first non-empty text part of the first candidate
func (r *generateResponse) text() (string, bool) {
	if len(r.Candidates) == 0 {
		return "", false
	}
	for _, p := range r.Candidates[0].Content.Parts {
		if p.Text != "" {
			return p.Text, true
		}
	}
	return "", false
}

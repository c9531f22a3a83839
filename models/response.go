package models

// OCRResponse is the body of every /api/ocr answer, including failures.
type OCRResponse struct {
	Text string `json:"text"`
}

// Health is served on /health.
type Health struct {
	Status   string   `json:"status"`
	Version  string   `json:"version"`
	Engine   string   `json:"engine"`
	Features []string `json:"features"`
	// Tesseract is the linked libtesseract version, omitted when unknown.
	Tesseract string `json:"tesseract,omitempty"`
}

// OCRReport is the per-file summary written by the batch tool.
type OCRReport struct {
	File     string   `json:"file"`
	Strategy string   `json:"strategy,omitempty"`
	Chars    int      `json:"chars"`
	Barcodes []string `json:"barcodes,omitempty"`
	Skew     float64  `json:"skew"`
	TookMS   int64    `json:"took_ms"`
	Error    string   `json:"error,omitempty"`
}

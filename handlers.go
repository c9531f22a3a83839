package main

import (
	_ "embed"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"ocrio/models"
	"ocrio/pkg/ocr"

	"github.com/gin-gonic/gin"
)

const (
	appVersion = "6.0.0"
	engineName = "Multi-Method OCR"

	// multipartSlack covers multipart framing on top of the file itself.
	multipartSlack = 1 << 20

	noFileMessage = `No file uploaded. Send the image in the "file" form field.`
)

//go:embed web/index.html
var indexHTML []byte

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
	".webp": true,
}

// server carries what the handlers share. The pipeline is safe for concurrent use.
type server struct {
	pipeline  *ocr.Pipeline
	jwtSecret []byte
	origins   []string
	tesseract string
}

func setupRoutes(r *gin.Engine, s *server) {
	r.Use(requestLogger(), cors(s.origins))
	r.GET("/", indexHandler)
	r.GET("/health", s.healthHandler)

	api := r.Group("/api")
	if len(s.jwtSecret) > 0 {
		api.Use(jwtAuthMiddleware(s.jwtSecret))
	}
	api.POST("/ocr", s.ocrHandler)
}

func indexHandler(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (s *server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, models.Health{
		Status:    "healthy",
		Version:   appVersion,
		Engine:    engineName,
		Features:  s.features(),
		Tesseract: s.tesseract,
	})
}

func (s *server) features() []string {
	opts := s.pipeline.Options()
	f := []string{"qr-barcode-detection", "text-validation", "selection:" + string(opts.Selection)}
	if opts.Deskew {
		f = append(f, "deskew")
	}
	if opts.TargetMinSide > 0 {
		f = append(f, "upscale")
	}
	for _, c := range opts.Configs {
		f = append(f, "strategy:"+string(c.Strategy))
	}
	return f
}

// ocrHandler answers 200 with a text body for every request-level failure.
func (s *server) ocrHandler(c *gin.Context) {
	limits := s.pipeline.Options().Limits
	if limits.MaxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(limits.MaxBytes)+multipartSlack)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondText(c, ocr.TooLargeMessage)
			return
		}
		_ = c.Error(err)
		respondText(c, noFileMessage)
		return
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(fh.Filename))] {
		respondText(c, ocr.UnsupportedMessage)
		return
	}
	if err := limits.CheckSize(fh.Size); err != nil {
		respondText(c, ocr.ErrorText(err))
		return
	}

	f, err := fh.Open()
	if err != nil {
		_ = c.Error(err)
		respondText(c, ocr.ErrorText(err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		_ = c.Error(err)
		respondText(c, ocr.ErrorText(err))
		return
	}

	res := s.pipeline.Process(c.Request.Context(), data)
	if res.Err != nil && !errors.Is(res.Err, ocr.ErrNoContent) {
		_ = c.Error(res.Err)
	}
	respondText(c, res.Text)
}

func respondText(c *gin.Context, text string) {
	c.JSON(http.StatusOK, models.OCRResponse{Text: text})
}

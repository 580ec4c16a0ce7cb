// Package server exposes the appraisal pipeline over a small HTTP API.
package server

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"appraisald/internal/dedup"
	"appraisald/internal/pipeline"
	"appraisald/internal/storage"
)

// maxUploadBytes bounds one multipart request (images plus video).
const maxUploadBytes = 256 << 20

// Runner executes appraisal requests; implemented by pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, req *pipeline.Request) (*pipeline.Result, error)
}

// Server handles the HTTP surface.
type Server struct {
	runner Runner
	store  storage.Store
}

// New creates a server around the given pipeline runner and store.
func New(runner Runner, store storage.Store) *Server {
	return &Server{runner: runner, store: store}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = 32 << 20

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.POST("/appraisals", s.handleCreateAppraisal)
	api.GET("/appraisals", s.handleListAppraisals)
	api.GET("/appraisals/:id", s.handleGetAppraisal)
	api.GET("/appraisals/:id/download", s.handleDownloadReport)

	return r
}

func (s *Server) handleCreateAppraisal(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form: " + err.Error()})
		return
	}

	req := &pipeline.Request{
		Options: parseOptions(c),
	}

	for _, fh := range form.File["images"] {
		data, err := readUpload(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read image upload: " + err.Error()})
			return
		}
		req.Images = append(req.Images, data)
	}

	if videos := form.File["video"]; len(videos) > 0 {
		videoPath, cleanup, err := saveUploadTemp(c, videos[0])
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store video upload: " + err.Error()})
			return
		}
		defer cleanup()
		req.VideoPath = videoPath
	}

	if manual := c.PostForm("manual_items"); manual != "" {
		if err := json.Unmarshal([]byte(manual), &req.ManualItems); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid manual_items JSON: " + err.Error()})
			return
		}
	}

	if len(req.Images) == 0 && req.VideoPath == "" && len(req.ManualItems) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide images, a video, or manual_items"})
		return
	}

	result, err := s.runner.Run(c.Request.Context(), req)
	if err != nil {
		log.Error().Err(err).Msg("appraisal request failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"report":        recordView(result.Record),
		"failed_images": result.FailedImages,
	})
}

func (s *Server) handleListAppraisals(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := s.store.ListAppraisals(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	views := make([]gin.H, 0, len(records))
	for _, r := range records {
		views = append(views, recordView(r))
	}
	c.JSON(http.StatusOK, gin.H{"reports": views})
}

func (s *Server) handleGetAppraisal(c *gin.Context) {
	record, err := s.store.GetAppraisal(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	c.JSON(http.StatusOK, recordView(record))
}

func (s *Server) handleDownloadReport(c *gin.Context) {
	record, err := s.store.GetAppraisal(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if record == nil || record.FilePath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "report file not found"})
		return
	}
	c.FileAttachment(record.FilePath, record.FileName)
}

func parseOptions(c *gin.Context) pipeline.Options {
	return pipeline.Options{
		Language:      c.DefaultPostForm("language", "en"),
		Currency:      c.DefaultPostForm("currency", "EUR"),
		SingleItem:    c.PostForm("single_item") == "true",
		PriceResearch: c.PostForm("price_research") == "true",
		Fallback:      c.PostForm("fallback") == "true",
	}
}

func recordView(r *storage.AppraisalRecord) gin.H {
	return gin.H{
		"id":          r.ID,
		"created_at":  r.CreatedAt.Format(time.RFC3339),
		"language":    r.Language,
		"currency":    r.Currency,
		"single_item": r.SingleItem,
		"status":      r.Status,
		"file_name":   r.FileName,
		"total_value": r.TotalValue,
		"products":    productViews(r.Products),
	}
}

func productViews(products []*dedup.ReportableProduct) []*dedup.ReportableProduct {
	if products == nil {
		return []*dedup.ReportableProduct{}
	}
	return products
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func saveUploadTemp(c *gin.Context, fh *multipart.FileHeader) (string, func(), error) {
	dir, err := os.MkdirTemp("", "appraisal-video-")
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(dir, filepath.Base(fh.Filename))
	if err := c.SaveUploadedFile(fh, path); err != nil {
		os.RemoveAll(dir)
		return "", nil, err
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Str("dir", dir).Err(err).Msg("failed to remove video temp dir")
		}
	}
	return path, cleanup, nil
}

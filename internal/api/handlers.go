package api

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kickspeed/kickspeed/internal/datastore"
	"github.com/kickspeed/kickspeed/internal/errors"
	"github.com/kickspeed/kickspeed/internal/leaderboard"
	"github.com/kickspeed/kickspeed/internal/logger"
	"github.com/kickspeed/kickspeed/internal/pipeline"
)

// Error codes returned in ErrorResponse.Error
const (
	ErrNoVideo          = "no_video"
	ErrNoFrames         = "no_frames"
	ErrProcessingFailed = "processing_failed"
	ErrNotFound         = "not_found"
	ErrReadFailed       = "read_failed"
)

const uploadField = "video"

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ResultResponse is a stored result with its daily ranking attached
type ResultResponse struct {
	*datastore.AnalysisResult
	Rankings *leaderboard.DailyRanking `json:"rankings,omitempty"`
}

// healthCheck handles GET /health
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

// analyze handles POST /api/analyze
func (s *Server) analyze(c echo.Context) error {
	file, err := c.FormFile(uploadField)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrNoVideo})
	}

	videoPath, err := s.saveUpload(file)
	if err != nil {
		s.log.Error("failed to store upload", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   ErrProcessingFailed,
			Message: "failed to store upload",
		})
	}
	if s.metrics != nil {
		s.metrics.HTTP.ObserveUpload(file.Size)
	}

	result, err := s.pipeline.Run(c.Request().Context(), videoPath)
	if err != nil {
		if pipeline.KindOf(err) == pipeline.KindNoFrames {
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: ErrNoFrames})
		}
		message := err.Error()
		var pe *pipeline.Error
		if errors.As(err, &pe) {
			message = pe.Message()
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   ErrProcessingFailed,
			Message: message,
		})
	}

	return c.JSON(http.StatusOK, result)
}

// saveUpload copies the multipart file to uploads/<uuid><ext>
func (s *Server) saveUpload(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	dst := filepath.Join(s.config.UploadsDir, uuid.NewString()+ext)

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", errors.FileError(err, dst)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return "", errors.FileError(err, dst)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", errors.FileError(err, dst)
	}
	return dst, nil
}

// getResult handles GET /api/result/:id
func (s *Server) getResult(c echo.Context) error {
	id := c.Param("id")

	result, err := s.results.Get(id)
	if err != nil {
		if errors.IsNotFound(err) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: ErrNotFound})
		}
		s.log.Error("failed to read result",
			logger.String("submission_id", id),
			logger.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: ErrReadFailed})
	}

	resp := ResultResponse{AnalysisResult: result}
	if s.ranker != nil {
		resp.Rankings = s.ranker.RankFor(result.ID, result.Analysis.SpeedKmh, datastore.DateKey(result.CreatedAt))
	}
	return c.JSON(http.StatusOK, resp)
}

package http

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"resume-matcher/internal/auth"
	"resume-matcher/internal/domain"
	"resume-matcher/internal/service"
	"resume-matcher/internal/storage"
)

const (
	apiVersion     = "1.0.0"
	maxUploadBytes = 10 << 20
	adminKeyHeader = "X-Admin-Key"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	analysis    service.AnalysisService
	users       service.UserService
	resumes     service.ResumeService
	metrics     http.Handler
	frontendURL string
	logger      logrus.FieldLogger
}

type HandlerOptions struct {
	Analysis service.AnalysisService
	Users    service.UserService
	Resumes  service.ResumeService
	// Metrics serves /metrics when set.
	Metrics     http.Handler
	FrontendURL string
	Logger      logrus.FieldLogger
}

func NewHandler(opts HandlerOptions) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		analysis:    opts.Analysis,
		users:       opts.Users,
		resumes:     opts.Resumes,
		metrics:     opts.Metrics,
		frontendURL: opts.FrontendURL,
		logger:      logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.logger), corsMiddleware(h.frontendURL))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ResumeAI API", "version": apiVersion})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	api := router.Group("/api")
	{
		api.POST("/analyze", h.analyze)
		api.POST("/rewrite-section", h.rewriteSection)
		api.POST("/generate-cover-letter", h.generateCoverLetter)
		api.POST("/upload-resume", h.uploadResume)

		api.GET("/user/profile", h.profile)
		api.GET("/user/history", h.history)
		api.GET("/user/resumes", h.listResumes)
		api.DELETE("/user/resumes", h.purgeResumes)

		api.PUT("/admin/users/:subject/tier", h.setTier)
	}
}

// credential returns the bearer token, or "" which the resolver rejects.
func credential(c *gin.Context) string {
	token, _ := auth.BearerToken(c.GetHeader("Authorization"))
	return token
}

// requireCredential rejects requests without a bearer token before the body
// is read.
func (h *Handler) requireCredential(c *gin.Context) (string, bool) {
	token := credential(c)
	if token == "" {
		h.writeError(c, fmt.Errorf("%w: missing credential", domain.ErrAuthentication))
		return "", false
	}
	return token, true
}

type analyzeRequest struct {
	ResumeText     string `json:"resume_text"`
	JobURL         string `json:"job_url"`
	JobDescription string `json:"job_description"`
}

type analyzeResponse struct {
	MatchScore        float64           `json:"match_score"`
	Suggestions       []string          `json:"suggestions"`
	RewrittenSections map[string]string `json:"rewritten_sections"`
	KeywordsMissing   []string          `json:"keywords_missing"`
	KeywordsPresent   []string          `json:"keywords_present"`
	Remaining         domain.Quota      `json:"remaining_analyses"`
}

func (h *Handler) analyze(c *gin.Context) {
	token, ok := h.requireCredential(c)
	if !ok {
		return
	}

	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	outcome, err := h.analysis.Analyze(c.Request.Context(), token, service.AnalyzeRequest{
		ResumeText:     req.ResumeText,
		JobURL:         req.JobURL,
		JobDescription: req.JobDescription,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, analyzeResponse{
		MatchScore:        outcome.Match.MatchScore,
		Suggestions:       outcome.Match.Suggestions,
		RewrittenSections: outcome.RewrittenSections,
		KeywordsMissing:   outcome.Match.KeywordsMissing,
		KeywordsPresent:   outcome.Match.KeywordsPresent,
		Remaining:         outcome.Remaining,
	})
}

type rewriteRequest struct {
	Section        string `json:"section"`
	ResumeText     string `json:"resume_text"`
	JobDescription string `json:"job_description"`
}

func (h *Handler) rewriteSection(c *gin.Context) {
	token, ok := h.requireCredential(c)
	if !ok {
		return
	}

	var req rewriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	rewritten, err := h.analysis.RewriteSection(c.Request.Context(), token, service.RewriteRequest{
		Section:        req.Section,
		ResumeText:     req.ResumeText,
		JobDescription: req.JobDescription,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewritten_section": rewritten})
}

type coverLetterRequest struct {
	ResumeText     string `json:"resume_text"`
	JobDescription string `json:"job_description"`
	RecipientName  string `json:"recipient_name"`
	CompanyName    string `json:"company_name"`
}

func (h *Handler) generateCoverLetter(c *gin.Context) {
	token, ok := h.requireCredential(c)
	if !ok {
		return
	}

	var req coverLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	letter, err := h.analysis.CoverLetter(c.Request.Context(), token, service.CoverLetterRequest{
		ResumeText:     req.ResumeText,
		JobDescription: req.JobDescription,
		RecipientName:  req.RecipientName,
		CompanyName:    req.CompanyName,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cover_letter": letter})
}

func (h *Handler) uploadResume(c *gin.Context) {
	token, ok := h.requireCredential(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, fmt.Errorf("file is required: %w", err))
		return
	}
	if header.Size > maxUploadBytes {
		h.badRequest(c, fmt.Errorf("file exceeds %d bytes", maxUploadBytes))
		return
	}

	file, err := header.Open()
	if err != nil {
		h.writeError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		h.writeError(c, fmt.Errorf("read upload: %w", err))
		return
	}

	upload, err := h.resumes.Upload(c.Request.Context(), token, header.Filename, data)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := gin.H{"resume_text": upload.ResumeText}
	if upload.Location != "" {
		resp["location"] = upload.Location
	}
	c.JSON(http.StatusOK, resp)
}

type ProfileResponse struct {
	Email      string       `json:"email"`
	Tier       domain.Tier  `json:"subscription"`
	UsageCount int          `json:"usage_count"`
	UsageLimit domain.Quota `json:"usage_limit"`
	Remaining  domain.Quota `json:"remaining_analyses"`
	ResetAt    string       `json:"reset_at"`
}

func (h *Handler) profile(c *gin.Context) {
	profile, err := h.users.Profile(c.Request.Context(), credential(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{
		Email:      profile.Email,
		Tier:       profile.Tier,
		UsageCount: profile.UsageCount,
		UsageLimit: profile.UsageLimit,
		Remaining:  profile.Remaining,
		ResetAt:    profile.ResetAt.UTC().Format(time.RFC3339),
	})
}

type HistoryEntry struct {
	ID              int64    `json:"id"`
	MatchScore      float64  `json:"match_score"`
	KeywordsMissing []string `json:"keywords_missing"`
	CreatedAt       string   `json:"created_at"`
}

func (h *Handler) history(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.badRequest(c, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	records, err := h.users.History(c.Request.Context(), credential(c), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]HistoryEntry, len(records))
	for i, rec := range records {
		resp[i] = HistoryEntry{
			ID:              rec.ID,
			MatchScore:      rec.MatchScore,
			KeywordsMissing: rec.KeywordsMissing,
			CreatedAt:       rec.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	c.JSON(http.StatusOK, resp)
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
	URL          string  `json:"url,omitempty"`
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	resp := StorageObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
		URL:  obj.URL,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}

func (h *Handler) listResumes(c *gin.Context) {
	objects, err := h.resumes.List(c.Request.Context(), credential(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) purgeResumes(c *gin.Context) {
	if err := h.resumes.Purge(c.Request.Context(), credential(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type setTierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

func (h *Handler) setTier(c *gin.Context) {
	if err := h.users.AuthorizeAdmin(c.GetHeader(adminKeyHeader)); err != nil {
		h.writeError(c, err)
		return
	}

	var req setTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	tier, err := domain.ParseTier(req.Tier)
	if err != nil {
		h.writeError(c, err)
		return
	}

	user, err := h.users.SetTier(c.Request.Context(), c.Param("subject"), tier)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject": user.Subject, "subscription": user.Tier})
}

package handler

import (
	"campusskill/backend/internal/engine"
	"campusskill/backend/internal/models"
	"campusskill/backend/internal/storage"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const maxPageSize = 100

type createTaskRequest struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Skills       []string  `json:"skills"`
	Deadline     time.Time `json:"deadline"`
	CreditPoints *int      `json:"creditPoints"`
}

type submitTaskRequest struct {
	Content string                  `json:"content"`
	Files   []models.SubmissionFile `json:"files"`
}

type reviewTaskRequest struct {
	Satisfied bool   `json:"satisfied"`
	Feedback  string `json:"feedback"`
	Rating    *int   `json:"rating"`
}

type reassignTaskRequest struct {
	Reason string `json:"reason"`
}

// ListTasks: GET /api/tasks?status=&posterRole=&skill=&search=&page=&limit=
func (h *Handler) ListTasks(c *gin.Context) {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 10)
	if limit > maxPageSize {
		limit = maxPageSize
	}

	f := storage.TaskFilter{
		Status:     models.TaskStatus(c.Query("status")),
		PosterRole: models.Role(c.Query("posterRole")),
		Skill:      c.Query("skill"),
		Search:     c.Query("search"),
		Page:       page,
		Limit:      limit,
	}
	tasks, total, err := h.Engine.List(c.Request.Context(), f)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":       len(tasks),
		"total":       total,
		"totalPages":  (total + int64(limit) - 1) / int64(limit),
		"currentPage": page,
		"tasks":       tasks,
	})
}

func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.Engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

// UserTasks: GET /api/tasks/user/:userId?type=posted|taken
func (h *Handler) UserTasks(c *gin.Context) {
	rel := storage.RelationAny
	switch c.Query("type") {
	case "posted":
		rel = storage.RelationPosted
	case "taken":
		rel = storage.RelationTaken
	}
	tasks, err := h.Engine.ListForUser(c.Request.Context(), c.Param("userId"), rel)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(tasks), "tasks": tasks})
}

func (h *Handler) MyTasks(c *gin.Context) {
	ctx := c.Request.Context()
	id := identity(c)
	posted, err := h.Engine.MyTasks(ctx, id, storage.RelationPosted)
	if err != nil {
		h.handleError(c, err)
		return
	}
	taken, err := h.Engine.MyTasks(ctx, id, storage.RelationTaken)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"postedTasks": posted, "takenTasks": taken})
}

func (h *Handler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	task, err := h.Engine.Create(c.Request.Context(), identity(c), engine.CreateInput{
		Title:        req.Title,
		Description:  req.Description,
		Skills:       req.Skills,
		Deadline:     req.Deadline,
		CreditPoints: req.CreditPoints,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

func (h *Handler) TakeTask(c *gin.Context) {
	task, err := h.Engine.Take(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (h *Handler) SubmitTask(c *gin.Context) {
	var req submitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	task, err := h.Engine.Submit(c.Request.Context(), identity(c), c.Param("id"), engine.SubmitInput{
		Content: req.Content,
		Files:   req.Files,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (h *Handler) ReviewTask(c *gin.Context) {
	var req reviewTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	task, err := h.Engine.Review(c.Request.Context(), identity(c), c.Param("id"), engine.ReviewInput{
		Satisfied: req.Satisfied,
		Feedback:  req.Feedback,
		Rating:    req.Rating,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (h *Handler) ReassignTask(c *gin.Context) {
	var req reassignTaskRequest
	// Тіло необов'язкове: без причини підставляється стандартна.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	task, err := h.Engine.Reassign(c.Request.Context(), identity(c), c.Param("id"), req.Reason)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (h *Handler) DeleteTask(c *gin.Context) {
	if err := h.Engine.Delete(c.Request.Context(), identity(c), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}

// queryInt parses a positive integer query parameter, returning def otherwise.
func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

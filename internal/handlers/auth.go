package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pg-user-api/internal/metrics"
	"pg-user-api/internal/middleware"
	"pg-user-api/internal/models"
	"pg-user-api/internal/service"
)

// Authenticator is implemented by service.AuthService.
type Authenticator interface {
	Register(ctx context.Context, in service.RegisterInput) (int64, error)
	Login(ctx context.Context, in service.LoginInput) (*models.Profile, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	// ExposeErrors returns raw error text in 500 bodies. Development only.
	ExposeErrors  bool
	MaxPhotoBytes int64
	PingTimeout   time.Duration
}

type Handler struct {
	auth    Authenticator
	db      Pinger
	metrics *metrics.Manager
	log     *zap.Logger
	opts    Options
}

func New(auth Authenticator, db Pinger, m *metrics.Manager, log *zap.Logger, opts Options) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 2 * time.Second
	}
	return &Handler{auth: auth, db: db, metrics: m, log: log, opts: opts}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.GET("/health", h.Health)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message string `json:"message"`
	*models.Profile
}

// formSlack covers the non-file parts of a registration form.
const formSlack = 1 << 20

func (h *Handler) Register(c *gin.Context) {
	if h.opts.MaxPhotoBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxPhotoBytes+formSlack)
	}
	if err := parseForm(c); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.fail(c, h.metrics.ObserveRegistration, &service.ValidationError{Message: "Photo too large"})
			return
		}
		h.fail(c, h.metrics.ObserveRegistration, &service.ValidationError{Message: "Invalid form data"})
		return
	}

	in := service.RegisterInput{
		Name:          c.PostForm("name"),
		PhoneNumber:   c.PostForm("phone_number"),
		Email:         c.PostForm("email"),
		Password:      c.PostForm("password"),
		UserType:      c.PostForm("user_type"),
		PGName:        c.PostForm("pg_name"),
		Address:       c.PostForm("address"),
		Profession:    c.PostForm("profession"),
		AadhaarNumber: c.PostForm("aadhaar_number"),
	}

	photo, name, err := h.readPhoto(c)
	if err != nil {
		h.fail(c, h.metrics.ObserveRegistration, err)
		return
	}
	in.Photo, in.PhotoName = photo, name

	id, err := h.auth.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, h.metrics.ObserveRegistration, err)
		return
	}

	h.metrics.ObserveRegistration(metrics.ResultSuccess)
	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user_id": id,
	})
}

func parseForm(c *gin.Context) error {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		_, err := c.MultipartForm()
		return err
	}
	return c.Request.ParseForm()
}

// readPhoto returns the optional "photo" attachment. A request without one,
// or one that is not multipart, has no photo.
func (h *Handler) readPhoto(c *gin.Context) ([]byte, string, error) {
	fh, err := c.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("read photo: %w", err)
	}
	if h.opts.MaxPhotoBytes > 0 && fh.Size > h.opts.MaxPhotoBytes {
		return nil, "", &service.ValidationError{Message: "Photo too large"}
	}

	f, err := fh.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("read photo: %w", err)
	}
	return data, fh.Filename, nil
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, h.metrics.ObserveLogin, &service.ValidationError{Message: "Email and password are required"})
		return
	}

	profile, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.fail(c, h.metrics.ObserveLogin, err)
		return
	}

	h.metrics.ObserveLogin(metrics.ResultSuccess)
	c.JSON(http.StatusOK, loginResponse{Message: "Login successful", Profile: profile})
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.opts.PingTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail maps a workflow error to its status and body, counts the outcome,
// and logs anything that is not the caller's fault.
func (h *Handler) fail(c *gin.Context, observe func(string), err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		observe(metrics.ResultInvalid)
		body := gin.H{"error": verr.Message}
		if len(verr.Fields) > 0 {
			body["fields"] = verr.Fields
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, service.ErrDuplicate):
		observe(metrics.ResultConflict)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
	case errors.Is(err, service.ErrNotFound):
		observe(metrics.ResultNotFound)
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, service.ErrAccountInactive):
		observe(metrics.ResultInactive)
		c.JSON(http.StatusForbidden, gin.H{"error": "Account not active"})
	case errors.Is(err, service.ErrInvalidCredential):
		observe(metrics.ResultDenied)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
	default:
		observe(metrics.ResultError)
		_ = c.Error(err)
		h.log.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		msg := "Internal server error"
		if h.opts.ExposeErrors {
			msg = err.Error()
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"IntentLane/internal/auth"
	xerrors "IntentLane/internal/errors"
	"IntentLane/internal/fills"
	"IntentLane/internal/observability/metrics"
	"IntentLane/pkg/logger"
)

// Server 负责暴露 REST 接口，供填单方提交结算作业并查询其进度。
type Server struct {
	addr  string
	fills *fills.Service
	auth  *auth.Service
	log   *slog.Logger
}

// ServerOption 配置 API 服务。
type ServerOption func(*Server)

// WithAuth 启用 API 凭证校验。
func WithAuth(svc *auth.Service) ServerOption {
	return func(s *Server) {
		s.auth = svc
	}
}

// WithServerLogger 覆盖默认日志器。
func WithServerLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, svc *fills.Service, opts ...ServerOption) *Server {
	s := &Server{addr: addr, fills: svc, log: logger.Named("api")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回完整的路由。认证中间件在最外层，指标采集在其内。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/fills", s.instrument("fills", s.handleFills))
	mux.HandleFunc("/api/v1/fills/", s.instrument("fill_detail", s.handleFillDetail))
	mux.HandleFunc("/api/v1/stats", s.instrument("stats", s.handleStats))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	if s.auth.Enabled() {
		return s.auth.Middleware()(mux)
	}
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.Info("API 服务已启动", slog.String("addr", s.addr))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleFills(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitFill(w, r)
	case http.MethodGet:
		s.handleListFills(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, xerrors.New(xerrors.CodeInvalidArgument, "仅支持 GET/POST"))
	}
}

// submitFillRequest 是提交作业的请求体。encoded 与 filler_data 采用
// 0x 前缀十六进制编码。
type submitFillRequest struct {
	ID         string         `json:"id,omitempty"`
	IntentID   common.Hash    `json:"intent_id"`
	Encoded    hexutil.Bytes  `json:"encoded"`
	Filler     common.Address `json:"filler"`
	FillerData hexutil.Bytes  `json:"filler_data,omitempty"`
}

// handleSubmitFill 处理填单方提交的结算作业。
func (s *Server) handleSubmitFill(w http.ResponseWriter, r *http.Request) {
	if s.fills == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "作业服务未初始化"))
		return
	}

	var req submitFillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.Wrap(fills.CodeJobValidation, err, "请求体解析失败"))
		return
	}

	job, err := s.fills.Submit(r.Context(), fills.SubmitRequest{
		ID:         req.ID,
		IntentID:   req.IntentID,
		Encoded:    req.Encoded,
		Filler:     req.Filler,
		FillerData: req.FillerData,
	})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	if caller := auth.CallerFromContext(r.Context()); caller != "" {
		s.log.Info("作业已受理",
			slog.String("job_id", job.ID),
			slog.String("caller", caller),
		)
	}
	writeJSON(w, http.StatusAccepted, job)
}

// handleListFills 按过滤条件列出作业。
func (s *Server) handleListFills(w http.ResponseWriter, r *http.Request) {
	if s.fills == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "作业服务未初始化"))
		return
	}

	opts, err := listOptionsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	jobs, err := s.fills.List(r.Context(), opts...)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fills": jobs})
}

// handleFillDetail 返回单个作业的状态与结算结果。
func (s *Server) handleFillDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, xerrors.New(xerrors.CodeInvalidArgument, "仅支持 GET"))
		return
	}
	if s.fills == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "作业服务未初始化"))
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/fills/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, xerrors.New(fills.CodeJobValidation, "作业 ID 非法"))
		return
	}

	job, err := s.fills.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleStats 返回作业统计信息。
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, xerrors.New(xerrors.CodeInvalidArgument, "仅支持 GET"))
		return
	}
	if s.fills == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "作业服务未初始化"))
		return
	}

	opts, err := listOptionsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stats, err := s.fills.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listOptionsFromQuery 解析查询参数为列表过滤条件。
func listOptionsFromQuery(r *http.Request) ([]fills.ListOption, error) {
	query := r.URL.Query()
	var opts []fills.ListOption

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return nil, xerrors.New(fills.CodeJobValidation, "limit 参数非法")
		}
		opts = append(opts, fills.WithLimit(limit))
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, xerrors.New(fills.CodeJobValidation, "offset 参数非法")
		}
		opts = append(opts, fills.WithOffset(offset))
	}
	if raw := query.Get("status"); raw != "" {
		var statuses []fills.Status
		for _, part := range strings.Split(raw, ",") {
			status := fills.Status(strings.TrimSpace(part))
			if !fills.IsValidStatus(status) {
				return nil, xerrors.New(fills.CodeJobValidation, "status 参数非法: "+string(status))
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, fills.WithStatuses(statuses...))
	}
	if raw := query.Get("updated_since"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, xerrors.New(fills.CodeJobValidation, "updated_since 参数非法")
		}
		opts = append(opts, fills.WithUpdatedSince(time.Unix(ts, 0)))
	}
	if raw := query.Get("updated_until"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, xerrors.New(fills.CodeJobValidation, "updated_until 参数非法")
		}
		opts = append(opts, fills.WithUpdatedUntil(time.Unix(ts, 0)))
	}
	if raw := query.Get("order"); raw != "" {
		switch raw {
		case "asc":
			opts = append(opts, fills.WithSortOrder(fills.SortByUpdatedAsc))
		case "desc":
			opts = append(opts, fills.WithSortOrder(fills.SortByUpdatedDesc))
		default:
			return nil, xerrors.New(fills.CodeJobValidation, "order 参数非法")
		}
	}
	if raw := query.Get("q"); raw != "" {
		opts = append(opts, fills.WithQuery(raw))
	}
	return opts, nil
}

// errorResponse 是统一的错误响应体。
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{
		Code:    string(xerrors.CodeOf(err)),
		Message: err.Error(),
	})
}

// statusForError 把业务错误码映射为 HTTP 状态码。
func statusForError(err error) int {
	switch xerrors.CodeOf(err) {
	case fills.CodeJobNotFound, xerrors.CodeNotFound:
		return http.StatusNotFound
	case fills.CodeJobConflict, fills.CodeJobSettled, xerrors.CodeConflict:
		return http.StatusConflict
	case fills.CodeJobValidation, xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case fills.CodeJobPublish, xerrors.CodeQueueFailure:
		return http.StatusBadGateway
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// instrument 为处理器采集请求量与时延指标。
func (s *Server) instrument(handler string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		metrics.ObserveHTTPRequest(handler, r.Method, recorder.status, time.Since(start))
	}
}

// statusRecorder 捕获响应状态码。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

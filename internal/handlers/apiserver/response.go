package apiserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"trackd/internal/services"
)

// Envelope 是所有 API 响应的统一结构。
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// dataEnvelope 总是输出 data 字段，空列表序列化为 []。
type dataEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"`
}

// statusFor 把服务层的哨兵错误映射为 HTTP 状态码。未知错误返回 0。
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFriends):
		return http.StatusForbidden
	case errors.Is(err, services.ErrFriendRequestMissing),
		errors.Is(err, services.ErrSuggestionNotFound),
		errors.Is(err, services.ErrItemNotFound),
		errors.Is(err, services.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrCannotAddSelf),
		errors.Is(err, services.ErrFriendshipExists),
		errors.Is(err, services.ErrInvitationExists),
		errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, services.ErrMissingID),
		errors.Is(err, services.ErrMissingFields),
		errors.Is(err, services.ErrInvalidMediaType),
		errors.Is(err, services.ErrSuggestToSelf),
		errors.Is(err, services.ErrMissingTmdbID),
		errors.Is(err, services.ErrMissingTitle),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrInvalidRating),
		errors.Is(err, services.ErrNothingToApply):
		return http.StatusBadRequest
	}
	return 0
}

// writeServiceError 写出已知业务错误；其他错误记录日志后以 fallback 文案返回 500。
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if status := statusFor(err); status != 0 {
		writeJSONError(w, err.Error(), status)
		return
	}
	log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg(fallback)
	writeJSONError(w, fallback, http.StatusInternalServerError)
}

// decodeJSON 解析请求体。空请求体视为空对象。
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// writeJSONResponse 是一个辅助函数，用于发送 JSON 响应。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// 头部已经发出，只能记录
		log.Error().Err(err).Msg("无法编码 JSON 响应")
	}
}

func writeData(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSONResponse(w, statusCode, dataEnvelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, Envelope{Success: true, Message: message})
}

// writeJSONError 是一个辅助函数，用于发送 JSON 格式的错误响应。
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, Envelope{Success: false, Error: message})
}

// Package handler 提供HTTP请求处理器
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/paiban/busplan/pkg/errors"
	"github.com/paiban/busplan/pkg/logger"
	"github.com/paiban/busplan/pkg/model"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 1 << 20

// respondJSON 返回JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError 返回错误响应，非 AppError 按内部错误处理
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Wrap(err, errors.CodeInternal, "服务器内部错误")
	}
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("请求失败")
	}

	body := map[string]interface{}{
		"error":   true,
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if appErr.Details != "" {
		body["details"] = appErr.Details
	}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}
	respondJSON(w, appErr.HTTPStatus, body)
}

// decodeJSON 解析请求体
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败").WithDetails(err.Error())
	}
	return nil
}

// pathID 解析路径中的 {id}
func pathID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.InvalidInput("id", "不是有效的UUID")
	}
	return id, nil
}

// queryDate 解析查询参数中的日期，required 为 false 时缺省返回零值
func queryDate(r *http.Request, key string, required bool) (model.Date, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		if required {
			return model.Date{}, errors.InvalidDate(key, "")
		}
		return model.Date{}, nil
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return model.Date{}, errors.InvalidDate(key, raw)
	}
	return d, nil
}

// queryShift 解析查询参数中的班次，可为空
func queryShift(r *http.Request) (model.ShiftType, error) {
	raw := r.URL.Query().Get("shift")
	if raw == "" {
		return "", nil
	}
	shift, err := model.ParseShiftType(raw)
	if err != nil {
		return "", errors.InvalidShift(raw)
	}
	return shift, nil
}

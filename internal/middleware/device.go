// Package middleware содержит HTTP middleware для сервиса prism.
package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const deviceIDKey contextKey = "deviceID"

// DeviceHeader — заголовок с идентификатором устройства, пространством имён
// всех данных сервиса.
const DeviceHeader = "X-Device-ID"

// deviceIDMaxLen защищает хранилище от произвольно длинных идентификаторов.
const deviceIDMaxLen = 128

// Device требует непустой заголовок X-Device-ID и кладёт его значение
// в контекст запроса. Запросы без идентификатора отклоняются с 400.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := strings.TrimSpace(r.Header.Get(DeviceHeader))
		if deviceID == "" || len(deviceID) > deviceIDMaxLen {
			http.Error(w, "missing or invalid "+DeviceHeader+" header", http.StatusBadRequest)
			return
		}

		ctx := context.WithValue(r.Context(), deviceIDKey, deviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetDeviceIDFromContext извлекает идентификатор устройства из контекста запроса.
func GetDeviceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceIDKey).(string)
	return id, ok
}

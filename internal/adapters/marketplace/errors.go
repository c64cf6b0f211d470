package marketplace

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteError представляет структурированный отказ маркетплейса (не-2xx ответ).
// Текст отказа сохраняется дословно и попадает в detail записи журнала.
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("marketplace: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("marketplace: %d: %s", e.StatusCode, e.Message)
}

// IsNotFound сообщает, является ли ошибка отказом класса "не найдено"
func IsNotFound(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.StatusCode == http.StatusNotFound
	}
	return false
}

package middleware

import (
	"net/http"
	"time"
)

// RequestObserver принимает сведения об обработанном запросе.
type RequestObserver interface {
	ObserveRequest(method string, status int, d time.Duration)
}

// Metrics передаёт метод, код ответа и длительность каждого запроса в observer.
func Metrics(observer RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			observer.ObserveRequest(r.Method, rec.statusCode(), time.Since(start))
		})
	}
}

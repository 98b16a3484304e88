package httpx

import (
	"net/http"
)

// visitorCounter is implemented by visitor sources that can report how many
// reconcilers they currently hold.
type visitorCounter interface {
	Len() int
}

type healthBody struct {
	Status   string `json:"status"`
	Visitors *int   `json:"visitors,omitempty"`
}

// healthHandler answers liveness probes. When the visitor source can count its
// live reconcilers the number is included so dashboards can watch hub growth.
func healthHandler(src VisitorSource) http.HandlerFunc {
	counter, _ := src.(visitorCounter)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			return
		}
		body := healthBody{Status: "ok"}
		if counter != nil {
			n := counter.Len()
			body.Visitors = &n
		}
		WriteJSON(w, http.StatusOK, body)
	}
}

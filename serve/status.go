package serve

import (
	"encoding/json"
	"net/http"
	"time"

	"camstream/video"
)

type StatusResponse struct {
	Started time.Time             `json:"started"`
	Sources []video.FetcherStatus `json:"sources"`
}

// StatusServer reports the state of every running source.
type StatusServer struct {
	Registry *video.Registry
	Started  time.Time
}

func (s *StatusServer) BuildResponse() *StatusResponse {
	resp := &StatusResponse{
		Started: s.Started,
		Sources: []video.FetcherStatus{},
	}
	for _, f := range s.Registry.Fetchers() {
		resp.Sources = append(resp.Sources, f.Status())
	}
	return resp
}

func (s *StatusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	js, err := json.Marshal(s.BuildResponse())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}

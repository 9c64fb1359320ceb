/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stats

import (
	"encoding/json"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// JSONHandler serves a JSON snapshot of s over HTTP, the same shape
// ptp4u/stats/json.go's handleRequest produces.
func JSONHandler(s Stats) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.Snapshot()
		js, err := json.Marshal(s.ToMap())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(js); err != nil {
			log.Errorf("stats: writing JSON response: %v", err)
		}
	}
}

// ListenAndServeJSON starts a dedicated HTTP server exposing s at "/" on
// port, blocking until the server exits.
func ListenAndServeJSON(port int, s Stats) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", JSONHandler(s))
	addr := fmt.Sprintf(":%d", port)
	log.Infof("stats: starting JSON http server on %s", addr)
	return http.ListenAndServe(addr, mux)
}

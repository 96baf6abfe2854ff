package http

import (
	gohttp "net/http"
)

func httpHandlerJSON(body string) gohttp.HandlerFunc {
	return func(w gohttp.ResponseWriter, r *gohttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func httpHandlerStatus(code int) gohttp.HandlerFunc {
	return func(w gohttp.ResponseWriter, r *gohttp.Request) {
		w.WriteHeader(code)
	}
}

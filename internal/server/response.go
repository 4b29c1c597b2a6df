package server

import "fmt"

func statusText(status int) string {
	switch status {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	}
	return "Unknown"
}

// httpResponse renders a complete HTTP/1.1 response with the fixed header
// set: JSON content type, wildcard CORS origin and an exact Content-Length.
func httpResponse(status int, jsonBody string) string {
	return fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: application/json\r\nContent-Length: %d\r\nAccess-Control-Allow-Origin: *\r\n\r\n%s",
		status, statusText(status), len(jsonBody), jsonBody,
	)
}

// Package httpapi mounts the authentication engine on net/http.
//
// Responses use a uniform envelope: {"status":"success", ...} for 2xx,
// {"status":"fail","message":...} for request-level rejections, and
// {"status":"error","message":...} for server-side failures. The refresh
// token additionally travels in an HTTP-only cookie so browser clients
// never have to store it in script-reachable state.
package httpapi

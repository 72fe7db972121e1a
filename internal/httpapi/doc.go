// Package httpapi is the JSON HTTP surface of the gateway. Every response
// uses the envelope {"success":bool,"message":string,"data":...}; errors
// are mapped onto statuses in one place (see writeError) and causes that
// are not user-correctable are logged, never echoed.
package httpapi

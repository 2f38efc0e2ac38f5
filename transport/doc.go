// Package transport provides the HTTP JSON transport used to reach the
// room service and the avatar rendering backend.
//
// Every non-2xx response, unreadable body or I/O failure surfaces as a
// *Error carrying the operation name, URL and status code:
//
//	body, err := client.PostJSON(ctx, "create_room", url, headers, payload)
//	var terr *transport.Error
//	if errors.As(err, &terr) && terr.StatusCode == http.StatusUnauthorized {
//	    // bad system token
//	}
//
// Callers that need a more specific error type (see negotiate) wrap *Error
// so errors.As still finds it.
package transport

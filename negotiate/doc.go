// Package negotiate registers a provisioned room with the avatar rendering
// backend so the backend joins the room as a remote participant.
//
// The Client is stateless and performs exactly one request per Negotiate
// call; retrying is the caller's concern.
package negotiate
